package mock

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
)

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	// Address is the UDP listen address (default ":1982").
	Address string

	// Group is the multicast group joined and advertised to. Empty skips
	// the join, which is what tests on loopback want.
	Group string

	// Interface names the multicast interface. Empty uses the default.
	Interface string

	Logger *slog.Logger
}

// Responder answers SSDP searches on behalf of simulated devices.
type Responder struct {
	config ResponderConfig
	logger *slog.Logger

	mu      sync.RWMutex
	devices []*Device
	pc      net.PacketConn
	done    chan struct{}
}

// NewResponder creates a responder. Call Start to listen.
func NewResponder(config ResponderConfig) *Responder {
	if config.Address == "" {
		config.Address = ":1982"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Responder{config: config, logger: logger}
}

// Add makes d answer searches.
func (r *Responder) Add(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, d)
}

// Start opens the socket and answers searches until ctx is done or Stop
// is called.
func (r *Responder) Start(ctx context.Context) error {
	pc, err := net.ListenPacket("udp4", r.config.Address)
	if err != nil {
		return err
	}
	if r.config.Group != "" {
		group, err := net.ResolveUDPAddr("udp4", r.config.Group)
		if err != nil {
			pc.Close()
			return err
		}
		if err := ipv4.NewPacketConn(pc).JoinGroup(r.iface(), &net.UDPAddr{IP: group.IP}); err != nil {
			pc.Close()
			return err
		}
	}

	r.mu.Lock()
	r.pc = pc
	r.done = make(chan struct{})
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = pc.Close() })
	go func() {
		defer close(r.done)
		defer stop()
		r.serve(pc)
	}()
	r.logger.Info("ssdp responder listening", "address", pc.LocalAddr(), "group", r.config.Group)
	return nil
}

// Stop closes the socket.
func (r *Responder) Stop() error {
	r.mu.RLock()
	pc, done := r.pc, r.done
	r.mu.RUnlock()
	if pc == nil {
		return ErrNotStarted
	}
	err := pc.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address.
func (r *Responder) Addr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pc == nil {
		return nil
	}
	return r.pc.LocalAddr()
}

// Advertise multicasts a NOTIFY for every device to the group.
func (r *Responder) Advertise() error {
	r.mu.RLock()
	pc, devices := r.pc, append([]*Device(nil), r.devices...)
	r.mu.RUnlock()
	if pc == nil {
		return ErrNotStarted
	}
	if r.config.Group == "" {
		return nil
	}
	to, err := net.ResolveUDPAddr("udp4", r.config.Group)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if _, err := pc.WriteTo(d.Advertisement(), to); err != nil {
			return err
		}
	}
	return nil
}

func (r *Responder) serve(pc net.PacketConn) {
	buf := make([]byte, 2048)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		if !isSearch(string(buf[:n])) {
			continue
		}

		r.mu.RLock()
		devices := append([]*Device(nil), r.devices...)
		r.mu.RUnlock()

		for _, d := range devices {
			if _, err := pc.WriteTo(d.SearchResponse(), from); err != nil {
				r.logger.Debug("search reply failed", "to", from, "error", err)
			}
		}
		r.logger.Debug("answered search", "from", from, "devices", len(devices))
	}
}

func (r *Responder) iface() *net.Interface {
	if r.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		return nil
	}
	return iface
}

func isSearch(text string) bool {
	return strings.HasPrefix(text, "M-SEARCH") && strings.Contains(text, discovery.SearchTarget)
}
