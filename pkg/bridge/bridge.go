package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// DefaultCommandTimeout bounds one command document.
const DefaultCommandTimeout = 15 * time.Second

// Bridge errors.
var (
	ErrNoClient       = errors.New("bridge: client is required")
	ErrNoRegistry     = errors.New("bridge: registry is required")
	ErrAlreadyStarted = errors.New("bridge: already started")
	ErrUnknownDevice  = errors.New("bridge: unknown device")
)

// Config configures a Bridge.
type Config struct {
	Client   Client
	Registry *device.Registry

	// Prefix is the topic root (default "yeelight").
	Prefix string
	QoS    byte

	// CommandTimeout bounds the handling of one set message.
	CommandTimeout time.Duration

	Logger *slog.Logger
}

// Bridge mirrors the sessions of a registry onto MQTT topics.
//
// Every light gets a retained state snapshot and availability topic. JSON
// documents published to <prefix>/<id>/set run as a command.Command;
// anything published to <prefix>/<id>/get refreshes the properties.
type Bridge struct {
	config Config
	topics Topics
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]bool
	dirty   map[string]struct{}
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge. It does not subscribe until Start.
func New(config Config) (*Bridge, error) {
	if config.Client == nil {
		return nil, ErrNoClient
	}
	if config.Registry == nil {
		return nil, ErrNoRegistry
	}
	if config.Prefix == "" {
		config.Prefix = "yeelight"
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		config:  config,
		topics:  Topics{Prefix: config.Prefix},
		logger:  logger,
		tracked: make(map[string]bool),
		dirty:   make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}, nil
}

// Topics returns the topic layout in use.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start subscribes to the command topics, tracks every registered session
// and starts the publisher.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.ctx != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	if err := b.config.Client.Subscribe(b.topics.AllSet(), b.config.QoS, b.handleSet); err != nil {
		b.cancel()
		return fmt.Errorf("subscribe set: %w", err)
	}
	if err := b.config.Client.Subscribe(b.topics.AllGet(), b.config.QoS, b.handleGet); err != nil {
		b.cancel()
		return fmt.Errorf("subscribe get: %w", err)
	}

	b.wg.Add(1)
	go b.publishLoop()

	for _, s := range b.config.Registry.List() {
		b.Track(s)
	}
	b.logger.Info("mqtt bridge started", "prefix", b.config.Prefix, "devices", b.config.Registry.Len())
	return nil
}

// Stop stops the publisher and marks every tracked light offline.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	ids := make([]string, 0, len(b.tracked))
	for id := range b.tracked {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()

	for _, id := range ids {
		b.publish(b.topics.Availability(id), true, []byte(StatusOffline))
	}
}

// Track publishes s and republishes it whenever its properties change.
// Tracking the same id twice is a no-op.
func (b *Bridge) Track(s *device.Session) {
	id := sessionKey(s)
	b.mu.Lock()
	if b.tracked[id] {
		b.mu.Unlock()
		return
	}
	b.tracked[id] = true
	b.mu.Unlock()

	s.OnPropertiesChanged(func([]string, props.Properties) { b.markDirty(id) })
	b.markDirty(id)
}

// Observer returns a device.Observer that republishes id when its
// connection state changes. Pass it in device.Config.Observer.
func (b *Bridge) Observer(id string) device.Observer {
	return availabilityObserver{b: b, id: id}
}

func (b *Bridge) markDirty(id string) {
	b.mu.Lock()
	b.dirty[id] = struct{}{}
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.wake:
		}

		b.mu.Lock()
		dirty := b.dirty
		b.dirty = make(map[string]struct{})
		b.mu.Unlock()

		for id := range dirty {
			if s, ok := b.config.Registry.Get(id); ok {
				b.publishLight(s)
			}
		}
	}
}

func (b *Bridge) publishLight(s *device.Session) {
	id := sessionKey(s)
	availability := StatusOffline
	if s.IsConnected() {
		availability = StatusOnline
	}
	b.publish(b.topics.Availability(id), true, []byte(availability))

	payload, err := json.Marshal(command.Snapshot(s))
	if err != nil {
		b.logger.Error("encode state", "device", id, "error", err)
		return
	}
	b.publish(b.topics.State(id), true, payload)
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	if err := b.config.Client.Publish(topic, b.config.QoS, retained, payload); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	s, ok := b.lookup(topic)
	if !ok {
		return
	}
	id := sessionKey(s)

	cmd, err := command.Parse(payload)
	if err != nil {
		b.reportError(id, err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.config.CommandTimeout)
	defer cancel()
	if err := cmd.Apply(ctx, s); err != nil {
		b.reportError(id, err)
	}
	b.markDirty(id)
}

func (b *Bridge) handleGet(topic string, _ []byte) {
	s, ok := b.lookup(topic)
	if !ok {
		return
	}
	id := sessionKey(s)

	ctx, cancel := context.WithTimeout(b.ctx, b.config.CommandTimeout)
	defer cancel()
	if err := s.RefreshProperties(ctx); err != nil {
		b.reportError(id, err)
	}
	b.markDirty(id)
}

func (b *Bridge) lookup(topic string) (*device.Session, bool) {
	id, _, ok := b.topics.Parse(topic)
	if !ok {
		b.logger.Debug("ignoring topic", "topic", topic)
		return nil, false
	}
	s, ok := b.config.Registry.Get(id)
	if !ok {
		b.logger.Warn("command for unknown device", "device", id, "error", ErrUnknownDevice)
		return nil, false
	}
	return s, true
}

// errorReport is published on the error topic.
type errorReport struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func (b *Bridge) reportError(id string, err error) {
	b.logger.Warn("command failed", "device", id, "error", err)
	payload, _ := json.Marshal(errorReport{
		Result: wire.ResultOf(err).String(),
		Error:  err.Error(),
	})
	b.publish(b.topics.Error(id), false, payload)
}

func sessionKey(s *device.Session) string {
	if id := s.ID(); id != "" {
		return id
	}
	return s.Address().String()
}

type availabilityObserver struct {
	device.NoopObserver
	b  *Bridge
	id string
}

func (o availabilityObserver) StateChanged(_, newState connection.State) {
	switch newState {
	case connection.StateConnected, connection.StateDirectActive, connection.StateDisconnected:
		o.b.markDirty(o.id)
	}
}

var _ device.Observer = availabilityObserver{}
