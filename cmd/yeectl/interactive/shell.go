// Package interactive provides the command language and interactive shell
// of yeectl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/config"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
)

// Config configures a Shell.
type Config struct {
	// Discoverer answers the discover command. Nil disables it.
	Discoverer *discovery.Discoverer

	// NewSession creates the session for a found or entered device.
	NewSession func(discovery.Descriptor) *device.Session

	// Wait is the discover listen time. Zero uses discovery.DefaultWait.
	Wait time.Duration

	Options Options
}

// Shell is the interactive yeectl prompt.
type Shell struct {
	config   Config
	registry *device.Registry
	order    []string
	current  *device.Session

	rl  *readline.Instance
	out io.Writer
}

// New creates a shell reading from the terminal.
func New(config Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "yeectl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(config, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(config Config, out io.Writer) *Shell {
	if config.Wait <= 0 {
		config.Wait = discovery.DefaultWait
	}
	return &Shell{
		config:   config,
		registry: device.NewRegistry(),
		out:      out,
	}
}

// Stdout returns a writer that does not garble the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx is done. Sessions are closed
// on return.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()
	defer s.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if s.Handle(ctx, line) {
			return
		}
	}
}

// Close closes every session the shell opened.
func (s *Shell) Close() error {
	return s.registry.Close()
}

// Handle runs one input line. It reports true when the shell should exit.
func (s *Shell) Handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "discover", "d":
		s.cmdDiscover(ctx, args)
	case "devices", "ls":
		s.cmdDevices()
	case "use", "u":
		s.cmdUse(args)
	case "connect", "add":
		s.cmdConnect(ctx, args)
	case "transition", "t":
		s.cmdTransition(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		if s.current == nil {
			fmt.Fprintln(s.out, "No device selected (use 'discover' then 'use <n>', or 'connect <ip>')")
			return false
		}
		if err := Exec(ctx, s.current, parts, s.config.Options, s.out); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return false
}

func (s *Shell) cmdDiscover(ctx context.Context, args []string) {
	if s.config.Discoverer == nil {
		fmt.Fprintln(s.out, "Discovery is not available")
		return
	}
	wait := s.config.Wait
	if len(args) > 0 {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil || secs <= 0 {
			fmt.Fprintf(s.out, "Invalid wait %q\n", args[0])
			return
		}
		wait = time.Duration(secs * float64(time.Second))
	}

	fmt.Fprintf(s.out, "Searching for %s...\n", wait)
	found := s.config.Discoverer.Discover(ctx, wait)
	added := 0
	for _, desc := range found {
		if s.add(desc) != nil {
			added++
		}
	}
	fmt.Fprintf(s.out, "Found %d device(s), %d new\n", len(found), added)
	s.cmdDevices()
}

func (s *Shell) cmdDevices() {
	if len(s.order) == 0 {
		fmt.Fprintln(s.out, "No devices")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tID\tADDRESS\tNAME\tCONNECTED")
	for i, key := range s.order {
		d, ok := s.registry.Get(key)
		if !ok {
			continue
		}
		mark := " "
		if d == s.current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %d\t%s\t%s\t%s\t%t\n", mark, i+1, d.ID(), d.Address(), d.Properties().Name, d.IsConnected())
	}
	_ = tw.Flush()
}

func (s *Shell) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: use <n|id|address>")
		return
	}
	d := s.lookup(args[0])
	if d == nil {
		fmt.Fprintf(s.out, "Unknown device %q\n", args[0])
		return
	}
	s.current = d
	fmt.Fprintf(s.out, "Using %s (%s)\n", d.ID(), d.Address())
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: connect <ip[:port]>")
		return
	}
	ap, err := config.DeviceConfig{Address: args[0]}.AddrPort()
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	d := s.lookup(ap.String())
	if d == nil {
		d = s.add(discovery.Descriptor{Address: ap, Capabilities: capability.NewSet(capability.All...)})
	}
	if err := d.Connect(ctx); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.current = d
	fmt.Fprintf(s.out, "Connected to %s\n", ap)
}

func (s *Shell) cmdTransition(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: transition <ms|default>")
		return
	}
	if args[0] == "default" {
		s.config.Options.Transition = nil
		fmt.Fprintln(s.out, "Transition: session default")
		return
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 0 {
		fmt.Fprintf(s.out, "Invalid transition %q\n", args[0])
		return
	}
	s.config.Options.Transition = &ms
	fmt.Fprintf(s.out, "Transition: %dms\n", ms)
}

// add registers a session for desc. It returns nil when the device is
// already known.
func (s *Shell) add(desc discovery.Descriptor) *device.Session {
	d := s.config.NewSession(desc)
	if err := s.registry.Add(d); err != nil {
		_ = d.Close()
		return nil
	}
	s.order = append(s.order, registryKey(d))
	return d
}

// lookup resolves a list index, device ID or address.
func (s *Shell) lookup(ref string) *device.Session {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(s.order) {
		d, _ := s.registry.Get(s.order[n-1])
		return d
	}
	if d, ok := s.registry.Get(ref); ok {
		return d
	}
	for _, d := range s.registry.List() {
		if d.Address().String() == ref || d.Address().Addr().String() == ref {
			return d
		}
	}
	return nil
}

func registryKey(d *device.Session) string {
	if d.ID() != "" {
		return d.ID()
	}
	return d.Address().String()
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
yeectl Commands:
  Devices:
    discover [seconds]    - Search the LAN for lights
    devices               - List known lights
    use <n|id|address>    - Select a light
    connect <ip[:port]>   - Add and select a light by address
    transition <ms>       - Fade for following commands ("default" resets)

  Light (prefix with main, bg or both to pick a channel):
    on | off | toggle
    bright <1-100>        ct <1700-6500>        rgb <RRGGBB>
    hsv <hue> <sat>       flow <preset|stop>    flows
    adjust <increase|decrease|circle> <bright|ct|color>
    name <text>           timer <minutes>       default
    music <on|off>        json <document>
    props                 caps

  Other:
    help                  - Show this help
    quit                  - Exit`)
}
