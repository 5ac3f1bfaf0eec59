package discovery

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters for devices that also speak the vendor cloud
// protocol.
const (
	MDNSService        = "_miio._udp"
	MDNSDomain         = "local."
	MDNSInstancePrefix = "yeelink-light-"
)

// BrowseFunc runs one mDNS browse until ctx is done. The default wraps
// zeroconf.Browse.
type BrowseFunc func(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// BrowseTimeout caps a Hints call when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Browse replaces the zeroconf browse, e.g. in tests.
	Browse BrowseFunc
}

// MDNSBrowser lists light instances advertised over mDNS.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = 10 * time.Second
	}
	b := &MDNSBrowser{config: config}
	if b.config.Browse == nil {
		b.config.Browse = b.zeroconfBrowse
	}
	return b
}

// Hints browses for light instances and sends each new IPv4 address once.
// The channel is closed when ctx is done or browsing ends.
func (b *MDNSBrowser) Hints(ctx context.Context) (<-chan netip.Addr, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	out := make(chan netip.Addr)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseDone := make(chan struct{})

	go func() {
		defer close(out)

		in, gone := entries, removed
		seen := make(map[netip.Addr]bool)
		for {
			select {
			case entry, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				for _, ip := range entryAddrs(entry) {
					if seen[ip] {
						continue
					}
					seen[ip] = true
					select {
					case out <- ip:
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-gone:
				// A vanished instance is simply not probed again.
				if !ok {
					gone = nil
				}
			case <-browseDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(browseDone)
		_ = b.config.Browse(ctx, MDNSService, entries, removed)
	}()

	return out, nil
}

func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return zeroconf.Browse(ctx, service, MDNSDomain, entries, removed, opts...)
}

// entryAddrs returns the IPv4 addresses of a light instance, or nil for
// other instances.
func entryAddrs(entry *zeroconf.ServiceEntry) []netip.Addr {
	if entry == nil || !strings.HasPrefix(entry.Instance, MDNSInstancePrefix) {
		return nil
	}
	addrs := make([]netip.Addr, 0, len(entry.AddrIPv4))
	for _, ip := range entry.AddrIPv4 {
		if a, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	return addrs
}

var _ HintSource = (*MDNSBrowser)(nil)
