package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// DefaultWait is the search window used when none is given.
const DefaultWait = 3 * time.Second

// maxDatagram bounds a single reply.
const maxDatagram = 2048

// HintSource yields addresses worth probing with a unicast search.
type HintSource interface {
	Hints(ctx context.Context) (<-chan netip.Addr, error)
}

// Config configures a Discoverer.
type Config struct {
	// GroupAddress is where searches are sent (default: MulticastAddress).
	GroupAddress string

	// ProbePort is the port unicast probes are sent to (default: 1982).
	ProbePort uint16

	// Interface names the interface for multicast traffic. Empty uses the
	// system default.
	Interface string

	// Hints, when set, is browsed during Discover and every hint is probed.
	Hints HintSource

	// Logger receives operational logs (optional).
	Logger *slog.Logger
}

// Discoverer sends searches and collects replies.
type Discoverer struct {
	config Config
	logger *slog.Logger
	group  *net.UDPAddr
}

// New creates a Discoverer.
func New(config Config) (*Discoverer, error) {
	if config.GroupAddress == "" {
		config.GroupAddress = MulticastAddress
	}
	if config.ProbePort == 0 {
		config.ProbePort = SearchPort
	}
	group, err := net.ResolveUDPAddr("udp4", config.GroupAddress)
	if err != nil {
		return nil, fmt.Errorf("group address: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Discoverer{config: config, logger: logger, group: group}, nil
}

// Discover sends one multicast search and collects replies until wait
// elapses or ctx is done. The first reply per address wins. A failed send
// yields an empty list.
func (d *Discoverer) Discover(ctx context.Context, wait time.Duration) []Descriptor {
	if wait <= 0 {
		wait = DefaultWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		d.logger.Warn("discovery socket failed", "error", err)
		return nil
	}
	defer pc.Close()
	d.configureMulticast(ipv4.NewPacketConn(pc))

	if _, err := pc.WriteTo(SearchRequest(), d.group); err != nil {
		d.logger.Warn("search send failed", "group", d.group, "error", err)
		return nil
	}

	c := newCollector()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.readReplies(gctx, pc, SourceSearch, c.add)
	})
	if d.config.Hints != nil {
		g.Go(func() error {
			d.probeHints(gctx, pc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Debug("discovery ended", "error", err)
	}

	found := c.list()
	d.logger.Debug("discovery finished", "devices", len(found))
	return found
}

// Probe sends a unicast search to ip and returns its reply. Replies whose
// Location names another address are ignored.
func (d *Discoverer) Probe(ctx context.Context, ip netip.Addr, wait time.Duration) (Descriptor, error) {
	if wait <= 0 {
		wait = DefaultWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return Descriptor{}, fmt.Errorf("probe %s: %w", ip, err)
	}
	defer pc.Close()

	if err := d.sendProbe(pc, ip); err != nil {
		return Descriptor{}, err
	}

	want := ip.Unmap()
	var (
		found Descriptor
		ok    bool
	)
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	_ = d.readReplies(ctx, pc, SourceProbe, func(desc Descriptor) {
		if !ok && desc.Address.Addr() == want {
			found, ok = desc, true
			stop()
		}
	})
	if !ok {
		return Descriptor{}, fmt.Errorf("probe %s: %w", ip, wire.ErrDeviceNotFound)
	}
	return found, nil
}

// Watch joins the search group and reports NOTIFY advertisements until ctx
// is done. The channel is closed afterwards.
func (d *Discoverer) Watch(ctx context.Context) (<-chan Descriptor, error) {
	pc, err := net.ListenPacket("udp4", ":"+strconv.Itoa(d.group.Port))
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	p := ipv4.NewPacketConn(pc)
	if d.group.IP.IsMulticast() {
		if err := p.JoinGroup(d.iface(), &net.UDPAddr{IP: d.group.IP}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("watch: join %s: %w", d.group.IP, err)
		}
	}

	out := make(chan Descriptor)
	go func() {
		defer close(out)
		defer pc.Close()
		_ = d.readReplies(ctx, pc, SourceNotify, func(desc Descriptor) {
			if desc.Source != SourceNotify {
				return
			}
			select {
			case out <- desc:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

func (d *Discoverer) probeHints(ctx context.Context, pc net.PacketConn) {
	hints, err := d.config.Hints.Hints(ctx)
	if err != nil {
		d.logger.Debug("mdns hints unavailable", "error", err)
		return
	}
	probed := make(map[netip.Addr]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case ip, ok := <-hints:
			if !ok {
				return
			}
			ip = ip.Unmap()
			if probed[ip] || !ip.Is4() {
				continue
			}
			probed[ip] = true
			if err := d.sendProbe(pc, ip); err != nil {
				d.logger.Debug("hint probe failed", "ip", ip, "error", err)
			}
		}
	}
}

func (d *Discoverer) sendProbe(pc net.PacketConn, ip netip.Addr) error {
	to := net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip.Unmap(), d.config.ProbePort))
	if _, err := pc.WriteTo(SearchRequest(), to); err != nil {
		return fmt.Errorf("probe %s: %w", ip, err)
	}
	return nil
}

// readReplies parses datagrams until ctx is done and hands each valid
// descriptor to fn.
func (d *Discoverer) readReplies(ctx context.Context, pc net.PacketConn, source Source, fn func(Descriptor)) error {
	// Unblock ReadFrom when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = pc.SetReadDeadline(time.Now())
	})
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = pc.SetReadDeadline(deadline)
	}

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return err
		}

		desc, err := ParseResponse(string(buf[:n]))
		if err != nil {
			d.logger.Debug("ignoring datagram", "from", from, "error", err)
			continue
		}
		if desc.Source != SourceNotify {
			desc.Source = source
		}
		fn(desc)
	}
}

func (d *Discoverer) configureMulticast(p *ipv4.PacketConn) {
	if err := p.SetMulticastTTL(2); err != nil {
		d.logger.Debug("set multicast ttl", "error", err)
	}
	if iface := d.iface(); iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			d.logger.Debug("set multicast interface", "interface", iface.Name, "error", err)
		}
	}
}

func (d *Discoverer) iface() *net.Interface {
	if d.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(d.config.Interface)
	if err != nil {
		d.logger.Debug("interface lookup failed", "interface", d.config.Interface, "error", err)
		return nil
	}
	return iface
}

// collector keeps the first descriptor per device IP in arrival order.
type collector struct {
	mu    sync.Mutex
	seen  map[netip.Addr]bool
	found []Descriptor
}

func newCollector() *collector {
	return &collector{seen: make(map[netip.Addr]bool)}
}

func (c *collector) add(d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ip := d.Address.Addr()
	if c.seen[ip] {
		return
	}
	c.seen[ip] = true
	c.found = append(c.found, d)
}

func (c *collector) list() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Descriptor(nil), c.found...)
}
