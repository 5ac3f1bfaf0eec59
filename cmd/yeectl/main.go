// Command yeectl controls Yeelight LAN lights from the command line.
//
// Usage:
//
//	yeectl [flags] discover
//	yeectl [flags] -addr <ip[:port]> <command> [args...]
//	yeectl [flags] -i
//
// Examples:
//
//	# List the lights on the LAN
//	yeectl discover
//
//	# Dim the background light with a one second fade
//	yeectl -addr 192.168.1.20 -transition 1000 bg bright 20
//
//	# Send a JSON command document
//	yeectl -addr 192.168.1.20 json '{"state":"on","color_temp":2700}'
//
//	# Interactive shell
//	yeectl -i
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/yeelight-lan/yeelight-go/cmd/yeectl/interactive"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/config"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/music"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

var (
	flagAddr        = flag.String("addr", "", "Light address (ip or ip:port)")
	flagInteractive = flag.Bool("i", false, "Start the interactive shell")
	flagWait        = flag.Duration("wait", discovery.DefaultWait, "Discovery listen time")
	flagMDNS        = flag.Bool("mdns", false, "Seed discovery from mDNS")
	flagInterface   = flag.String("iface", "", "Network interface for multicast")
	flagTimeout     = flag.Duration("timeout", device.DefaultTimeout, "Command timeout")
	flagTransition  = flag.Int("transition", -1, "Fade in milliseconds (-1: session default)")
	flagMusicAddr   = flag.String("music-addr", ":0", "Listen address for music mode connections")
	flagProtocolLog = flag.String("protocol-log", "", "Write protocol events to this .ylog file")
	flagLogLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

var errNoMode = errors.New("need discover, -addr or -i")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "yeectl - Yeelight LAN control\n\nUsage:\n"+
			"  yeectl [flags] discover\n"+
			"  yeectl [flags] -addr <ip[:port]> <command> [args...]\n"+
			"  yeectl [flags] -i\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	logger, err := config.NewLogger(config.LoggingConfig{Level: *flagLogLevel}, os.Stderr)
	if err != nil {
		return err
	}

	plog := log.Logger(log.NoopLogger{})
	if *flagProtocolLog != "" {
		fl, err := log.NewFileLogger(*flagProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		plog = fl
	}

	var hints discovery.HintSource
	if *flagMDNS {
		hints = discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: *flagInterface})
	}
	disc, err := discovery.New(discovery.Config{
		Interface: *flagInterface,
		Hints:     hints,
		Logger:    logger.With("component", "discovery"),
	})
	if err != nil {
		return err
	}

	switch {
	case *flagInteractive:
		return runInteractive(ctx, disc, logger, plog)
	case len(args) > 0 && args[0] == "discover":
		return runDiscover(ctx, disc, os.Stdout)
	case *flagAddr != "":
		return runOnce(ctx, args, logger, plog)
	}
	flag.Usage()
	return errNoMode
}

func runDiscover(ctx context.Context, disc *discovery.Discoverer, w io.Writer) error {
	found := disc.Discover(ctx, *flagWait)
	if len(found) == 0 {
		fmt.Fprintln(w, "No devices found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADDRESS\tMODEL\tFW\tNAME\tSUPPORT")
	for _, d := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d methods\n",
			d.ID, d.Address, d.Model, d.FirmwareVersion, d.Name, len(d.Capabilities.Methods()))
	}
	return tw.Flush()
}

func runOnce(ctx context.Context, args []string, logger *slog.Logger, plog log.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", interactive.ErrUsage)
	}
	ap, err := config.DeviceConfig{Address: *flagAddr}.AddrPort()
	if err != nil {
		return err
	}

	negotiator, err := startNegotiator(ctx, logger, plog)
	if err != nil {
		return err
	}
	defer negotiator.Stop()

	s := device.NewSession(sessionConfig(
		discovery.Descriptor{Address: ap, Capabilities: capability.NewSet(capability.All...)},
		negotiator, logger, plog,
	))
	defer s.Close()

	return interactive.Exec(ctx, s, args, options(), os.Stdout)
}

func runInteractive(ctx context.Context, disc *discovery.Discoverer, logger *slog.Logger, plog log.Logger) error {
	negotiator, err := startNegotiator(ctx, logger, plog)
	if err != nil {
		return err
	}
	defer negotiator.Stop()

	shell, err := interactive.New(interactive.Config{
		Discoverer: disc,
		NewSession: func(d discovery.Descriptor) *device.Session {
			return device.NewSession(sessionConfig(d, negotiator, logger, plog))
		},
		Wait:    *flagWait,
		Options: options(),
	})
	if err != nil {
		return err
	}
	shell.Run(ctx)
	return nil
}

func startNegotiator(ctx context.Context, logger *slog.Logger, plog log.Logger) (*music.Negotiator, error) {
	n := music.NewNegotiator(music.Config{
		Address:        *flagMusicAddr,
		Logger:         logger.With("component", "music"),
		ProtocolLogger: plog,
	})
	if err := n.Start(ctx); err != nil {
		return nil, fmt.Errorf("music listener: %w", err)
	}
	return n, nil
}

func sessionConfig(d discovery.Descriptor, n *music.Negotiator, logger *slog.Logger, plog log.Logger) device.Config {
	sc := device.ConfigFromDescriptor(d)
	sc.Timeout = *flagTimeout
	sc.Negotiator = n
	sc.Logger = logger
	sc.ProtocolLogger = plog
	return sc
}

func options() interactive.Options {
	if *flagTransition < 0 {
		return interactive.Options{}
	}
	ms := *flagTransition
	return interactive.Options{Transition: &ms}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, wire.ErrInvalidParams) || errors.Is(err, errNoMode) {
		return 2
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
