// Command yee-sim simulates Yeelight LAN lights.
//
// Each simulated light listens on its own command port, answers SSDP
// searches through a shared responder and, with -simulate, changes its
// state on a timer the way a wall switch or phone app would.
//
// Usage:
//
//	yee-sim [flags]
//
// Flags:
//
//	-count int              Number of lights (default 1)
//	-host string            Command listen host (default "0.0.0.0")
//	-base-port int          First command port (default 55443)
//	-advertise-host string  Host put in Location (default: detected)
//	-ssdp string            SSDP listen address (default ":1982")
//	-support string         Advertised methods, space separated (default: all)
//	-simulate               Change state periodically
//	-log-level string       Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Three lights for the bridge to find
//	yee-sim -count 3
//
//	# A plain white bulb
//	yee-sim -model mono -support "get_prop set_power toggle set_bright"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yeelight-lan/yeelight-go/internal/testharness/mock"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/config"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
)

// Config holds the simulator settings.
type Config struct {
	Count         int
	Host          string
	BasePort      int
	AdvertiseHost string
	SSDPAddress   string
	Interface     string
	Model         string
	Support       string
	Simulate      bool
	Interval      time.Duration
	NotifyEvery   time.Duration
	ProtocolLog   string
	LogLevel      string
}

var cfg Config

func init() {
	flag.IntVar(&cfg.Count, "count", 1, "Number of lights")
	flag.StringVar(&cfg.Host, "host", "0.0.0.0", "Command listen host")
	flag.IntVar(&cfg.BasePort, "base-port", discovery.DefaultCommandPort, "First command port")
	flag.StringVar(&cfg.AdvertiseHost, "advertise-host", "", "Host put in Location (default: detected)")
	flag.StringVar(&cfg.SSDPAddress, "ssdp", ":"+strconv.Itoa(discovery.SearchPort), "SSDP listen address")
	flag.StringVar(&cfg.Interface, "iface", "", "Network interface for multicast")
	flag.StringVar(&cfg.Model, "model", "color", "Reported model")
	flag.StringVar(&cfg.Support, "support", "", "Advertised methods, space separated (default: all)")
	flag.BoolVar(&cfg.Simulate, "simulate", false, "Change state periodically")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "Simulation step")
	flag.DurationVar(&cfg.NotifyEvery, "notify", time.Minute, "NOTIFY advertisement period (0 disables)")
	flag.StringVar(&cfg.ProtocolLog, "protocol-log", "", "Write device-side protocol events to this .ylog file")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	logger, err := config.NewLogger(config.LoggingConfig{Level: cfg.LogLevel}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := validate(cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulator failed", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func validate(c Config) error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", c.Count)
	}
	if c.BasePort < 1 || c.BasePort+c.Count-1 > 65535 {
		return fmt.Errorf("ports %d-%d out of range", c.BasePort, c.BasePort+c.Count-1)
	}
	return nil
}

func run(ctx context.Context, c Config, logger *slog.Logger) error {
	var plog log.Logger
	if c.ProtocolLog != "" {
		fl, err := log.NewFileLogger(c.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		plog = fl
	}

	advertise, err := advertiseHost(c)
	if err != nil {
		return err
	}

	support := capability.NewSet(capability.All...)
	if c.Support != "" {
		support = capability.ParseSupport(c.Support)
	}

	responder := mock.NewResponder(mock.ResponderConfig{
		Address:   c.SSDPAddress,
		Group:     discovery.MulticastAddress,
		Interface: c.Interface,
		Logger:    logger.With("component", "ssdp"),
	})

	devices := make([]*mock.Device, 0, c.Count)
	for i := range c.Count {
		port := c.BasePort + i
		d := mock.NewDevice(fmt.Sprintf("0x%016x", 0x5151_0000+i+1), support)
		d.Model = c.Model
		d.Logger = plog
		d.AdvertiseAddr = netip.AddrPortFrom(advertise, uint16(port))
		if err := d.Start(ctx, net.JoinHostPort(c.Host, strconv.Itoa(port))); err != nil {
			return fmt.Errorf("light %d: %w", i+1, err)
		}
		defer d.Stop()

		responder.Add(d)
		devices = append(devices, d)
		logger.Info("light started", "id", d.ID, "location", d.Location(), "model", d.Model)
	}

	if err := responder.Start(ctx); err != nil {
		return fmt.Errorf("ssdp: %w", err)
	}
	defer responder.Stop()
	advertiseNow(responder, logger)

	if c.Simulate {
		go runSimulation(ctx, devices, c.Interval, logger)
	}

	var notify <-chan time.Time
	if c.NotifyEvery > 0 {
		t := time.NewTicker(c.NotifyEvery)
		defer t.Stop()
		notify = t.C
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-notify:
			advertiseNow(responder, logger)
		}
	}
}

func advertiseNow(r *mock.Responder, logger *slog.Logger) {
	if err := r.Advertise(); err != nil {
		logger.Warn("advertisement failed", "error", err)
	}
}

// advertiseHost returns the configured host, or the local address the
// system would use to reach the search group.
func advertiseHost(c Config) (netip.Addr, error) {
	host := c.AdvertiseHost
	if host == "" && c.Host != "0.0.0.0" && c.Host != "" {
		host = c.Host
	}
	if host != "" {
		return netip.ParseAddr(host)
	}

	conn, err := net.Dial("udp4", discovery.MulticastAddress)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("detect advertise host: %w", err)
	}
	defer conn.Close()
	ap, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		return netip.Addr{}, err
	}
	return ap.Addr(), nil
}
