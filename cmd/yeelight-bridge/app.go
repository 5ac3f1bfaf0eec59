package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/yeelight-lan/yeelight-go/pkg/bridge"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/config"
	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
	"github.com/yeelight-lan/yeelight-go/pkg/httpapi"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/metrics"
	"github.com/yeelight-lan/yeelight-go/pkg/music"
)

const (
	connectConcurrency = 8
	shutdownTimeout    = 5 * time.Second
)

// app wires the daemon components together.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	plog       log.Logger
	metrics    *metrics.Collector
	registry   *device.Registry
	negotiator *music.Negotiator
	discoverer *discovery.Discoverer
	bridge     *bridge.Bridge

	// dial replaces the TCP dialer of every session (tests).
	dial connection.DialFunc

	// dialMQTT replaces bridge.Dial (tests).
	dialMQTT func(bridge.ClientOptions) (bridge.Client, error)

	// httpReady receives the API listener address once it is bound.
	httpReady chan net.Addr
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var hints discovery.HintSource
	if cfg.Discovery.MDNS {
		hints = discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: cfg.Discovery.Interface})
	}
	disc, err := discovery.New(discovery.Config{
		Interface: cfg.Discovery.Interface,
		Hints:     hints,
		Logger:    logger.With("component", "discovery"),
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		plog:       log.NoopLogger{},
		metrics:    metrics.New(reg),
		registry:   device.NewRegistry(),
		discoverer: disc,
		dialMQTT: func(o bridge.ClientOptions) (bridge.Client, error) {
			return bridge.Dial(o)
		},
		httpReady: make(chan net.Addr, 1),
	}
	return a, nil
}

// run starts every enabled component and blocks until ctx is done.
func (a *app) run(ctx context.Context) error {
	if path := a.cfg.Logging.ProtocolLog; path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		a.plog = fl
		a.logger.Info("protocol logging enabled", "path", path)
	}

	if a.cfg.Music.Enabled {
		a.negotiator = music.NewNegotiator(music.Config{
			Address:        a.cfg.Music.Address,
			AdvertiseHost:  a.cfg.Music.AdvertiseHost,
			Logger:         a.logger.With("component", "music"),
			ProtocolLogger: a.plog,
		})
		if err := a.negotiator.Start(ctx); err != nil {
			return fmt.Errorf("music listener: %w", err)
		}
		defer a.negotiator.Stop()
	}

	if a.cfg.MQTT.Enabled {
		topics := bridge.Topics{Prefix: a.cfg.MQTT.TopicPrefix}
		client, err := a.dialMQTT(bridge.ClientOptions{
			Broker:         a.cfg.MQTT.Broker,
			ClientID:       a.cfg.MQTT.ClientID,
			Username:       a.cfg.MQTT.Username,
			Password:       a.cfg.MQTT.Password,
			StatusTopic:    topics.Status(),
			QoS:            byte(a.cfg.MQTT.QoS),
			ConnectTimeout: a.cfg.MQTT.ConnectTimeout,
			KeepAlive:      a.cfg.MQTT.KeepAlive,
			Logger:         a.logger.With("component", "mqtt"),
		})
		if err != nil {
			return err
		}
		defer client.Close()

		a.bridge, err = bridge.New(bridge.Config{
			Client:   client,
			Registry: a.registry,
			Prefix:   a.cfg.MQTT.TopicPrefix,
			QoS:      byte(a.cfg.MQTT.QoS),
			Logger:   a.logger.With("component", "bridge"),
		})
		if err != nil {
			return err
		}
	}
	defer a.registry.Close()

	for _, desc := range a.collect(ctx) {
		a.addDevice(desc)
	}
	a.connectAll(ctx, a.registry.List())
	a.logger.Info("devices ready", "count", a.registry.Len())

	if a.bridge != nil {
		if err := a.bridge.Start(ctx); err != nil {
			return err
		}
		defer a.bridge.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.HTTP.Enabled {
		g.Go(func() error { return a.serveHTTP(gctx) })
	}
	if a.cfg.Discovery.Enabled && a.cfg.Discovery.Watch {
		g.Go(func() error { return a.watch(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// collect returns the configured devices followed by the discovered ones
// not already configured.
func (a *app) collect(ctx context.Context) []discovery.Descriptor {
	var out []discovery.Descriptor
	seenAddr := make(map[netip.Addr]bool)
	seenID := make(map[string]bool)

	for _, dc := range a.cfg.Devices {
		ap, err := dc.AddrPort()
		if err != nil {
			a.logger.Warn("skipping device", "address", dc.Address, "error", err)
			continue
		}
		desc := discovery.Descriptor{Address: ap, ID: dc.ID, Name: dc.Name}
		if len(dc.Support) > 0 {
			desc.Capabilities = capability.ParseSupport(strings.Join(dc.Support, " "))
		} else {
			a.probe(ctx, &desc)
		}
		seenAddr[ap.Addr()] = true
		if desc.ID != "" {
			seenID[desc.ID] = true
		}
		out = append(out, desc)
	}

	if !a.cfg.Discovery.Enabled {
		return out
	}
	for _, desc := range a.discoverer.Discover(ctx, a.cfg.Discovery.Wait) {
		if seenAddr[desc.Address.Addr()] || (desc.ID != "" && seenID[desc.ID]) {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// probe fills in the capabilities of a configured device from a unicast
// search. A device that does not answer is assumed to support everything;
// the device itself then rejects what it lacks.
func (a *app) probe(ctx context.Context, desc *discovery.Descriptor) {
	found, err := a.discoverer.Probe(ctx, desc.Address.Addr(), a.cfg.Discovery.Wait)
	if err != nil {
		a.logger.Warn("probe failed, assuming full support", "address", desc.Address, "error", err)
		desc.Capabilities = capability.NewSet(capability.All...)
		return
	}
	desc.Capabilities = found.Capabilities
	desc.Model = found.Model
	if desc.ID == "" {
		desc.ID = found.ID
	}
}

// addDevice creates and registers a session for desc. It returns nil when
// a session with the same key already exists.
func (a *app) addDevice(desc discovery.Descriptor) *device.Session {
	sc := device.ConfigFromDescriptor(desc)
	sc.Timeout = a.cfg.Session.Timeout
	sc.MaxRetries = a.cfg.Session.MaxRetries
	sc.RetryDelay = a.cfg.Session.RetryDelay
	sc.DirectTimeout = a.cfg.Session.DirectTimeout
	sc.AutoReconnect = a.cfg.Session.AutoReconnect
	sc.Dial = a.dial
	sc.ProtocolLogger = a.plog
	if a.negotiator != nil {
		sc.Negotiator = a.negotiator
	}

	key := desc.ID
	if key == "" {
		key = desc.Address.String()
	}
	logger := a.logger
	if desc.Name != "" {
		logger = logger.With("name", desc.Name)
	}
	sc.Logger = logger

	observers := []device.Observer{a.metrics.ForDevice(key)}
	if a.bridge != nil {
		observers = append(observers, a.bridge.Observer(key))
	}
	sc.Observer = device.Observers(observers...)

	s := device.NewSession(sc)
	if err := a.registry.Add(s); err != nil {
		_ = s.Close()
		return nil
	}
	a.logger.Info("device added", "device", key, "address", desc.Address,
		"model", desc.Model, "source", desc.Source)
	return s
}

// connectAll connects sessions concurrently. Failures are logged; the
// sessions stay registered and connect on their first command.
func (a *app) connectAll(ctx context.Context, sessions []*device.Session) {
	var g errgroup.Group
	g.SetLimit(connectConcurrency)
	for _, s := range sessions {
		g.Go(func() error {
			if err := s.Connect(ctx); err != nil {
				a.logger.Warn("initial connect failed", "device", s.ID(), "address", s.Address(), "error", err)
				return nil
			}
			if err := s.RefreshProperties(ctx); err != nil {
				a.logger.Debug("initial refresh failed", "device", s.ID(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// watch follows NOTIFY advertisements, adding new lights and moving known
// ones to their new address.
func (a *app) watch(ctx context.Context) error {
	ads, err := a.discoverer.Watch(ctx)
	if err != nil {
		a.logger.Warn("discovery watch unavailable", "error", err)
		return nil
	}
	for desc := range ads {
		a.handleAdvertisement(ctx, desc)
	}
	return nil
}

func (a *app) handleAdvertisement(ctx context.Context, desc discovery.Descriptor) {
	if desc.ID != "" {
		if s, ok := a.registry.Get(desc.ID); ok {
			if s.Address() == desc.Address {
				return
			}
			a.logger.Info("device moved", "device", desc.ID, "from", s.Address(), "to", desc.Address)
			if err := s.ConnectTo(ctx, desc.Address); err != nil {
				a.logger.Warn("reconnect failed", "device", desc.ID, "error", err)
			}
			s.SetCapabilities(desc.Capabilities)
			return
		}
	}

	s := a.addDevice(desc)
	if s == nil {
		return
	}
	a.connectAll(ctx, []*device.Session{s})
	if a.bridge != nil {
		a.bridge.Track(s)
	}
}

func (a *app) serveHTTP(ctx context.Context) error {
	api := httpapi.NewServer(httpapi.Config{
		Registry: a.registry,
		Metrics:  a.metrics,
		Logger:   a.logger.With("component", "http"),
	})

	ln, err := net.Listen("tcp", a.cfg.HTTP.Address)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	srv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("http api listening", "address", ln.Addr())
	select {
	case a.httpReady <- ln.Addr():
	default:
	}
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
