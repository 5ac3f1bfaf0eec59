package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/transport"
)

// DefaultPort is the port devices are asked to connect back to.
const DefaultPort = 54321

// Negotiator errors.
var (
	ErrNotRunning  = errors.New("negotiator not running")
	ErrNoLocalHost = errors.New("no local address to advertise")
)

// Target receives direct connections for one device address.
type Target interface {
	// AcceptDirect takes ownership of conn and reports whether it was
	// installed. When it returns false the negotiator closes conn.
	AcceptDirect(conn net.Conn) bool
}

// Config configures a Negotiator.
type Config struct {
	// Address to listen on (default ":54321").
	Address string

	// AdvertiseHost overrides the host sent in set_music. When empty the
	// local address of the session's primary socket is used.
	AdvertiseHost string

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives accept and rejection events (optional).
	ProtocolLogger log.Logger
}

// Negotiator is the shared listener for direct connections.
type Negotiator struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	registry map[netip.Addr]Target
	server   *transport.Server

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewNegotiator creates a negotiator. Call Start to listen.
func NewNegotiator(config Config) *Negotiator {
	if config.Address == "" {
		config.Address = ":" + strconv.Itoa(DefaultPort)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Negotiator{
		config:   config,
		logger:   logger,
		registry: make(map[netip.Addr]Target),
	}
}

// Start opens the listener. It stops when ctx is done or Stop is called.
func (n *Negotiator) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.server != nil && n.server.Running() {
		return fmt.Errorf("negotiator already running on %s", n.server.Addr())
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Address:  n.config.Address,
		Logger:   n.config.ProtocolLogger,
		OnAccept: n.handleAccept,
		OnError: func(err error) {
			n.logger.Warn("direct channel accept failed", "error", err)
		},
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start negotiator: %w", err)
	}
	n.server = server
	n.logger.Info("direct channel listener started", "address", server.Addr())
	return nil
}

// Stop closes the listener. Installed direct channels stay open.
func (n *Negotiator) Stop() error {
	n.mu.Lock()
	server := n.server
	n.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Stop()
}

// Running reports whether the listener is accepting.
func (n *Negotiator) Running() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.server != nil && n.server.Running()
}

// Addr returns the listen address, or nil when not running.
func (n *Negotiator) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.server == nil || !n.server.Running() {
		return nil
	}
	return n.server.Addr()
}

// Endpoint returns the host and port to send in set_music. local is the
// local address of the primary socket and is used unless AdvertiseHost is
// configured.
func (n *Negotiator) Endpoint(local net.Addr) (string, int, error) {
	addr, ok := n.Addr().(*net.TCPAddr)
	if !ok || addr == nil {
		return "", 0, ErrNotRunning
	}
	if n.config.AdvertiseHost != "" {
		return n.config.AdvertiseHost, addr.Port, nil
	}
	ip, ok := addrIP(local)
	if !ok || ip.IsUnspecified() {
		return "", 0, ErrNoLocalHost
	}
	return ip.String(), addr.Port, nil
}

// Register associates ip with t, replacing any earlier target.
func (n *Negotiator) Register(ip netip.Addr, t Target) {
	ip = ip.Unmap()
	n.mu.Lock()
	prev, replaced := n.registry[ip]
	n.registry[ip] = t
	n.mu.Unlock()

	if replaced && prev != t {
		n.logger.Debug("direct channel target replaced", "ip", ip)
	}
}

// Unregister removes ip only if t is still its target. It reports whether
// an entry was removed.
func (n *Negotiator) Unregister(ip netip.Addr, t Target) bool {
	ip = ip.Unmap()
	n.mu.Lock()
	defer n.mu.Unlock()

	if cur, ok := n.registry[ip]; ok && cur == t {
		delete(n.registry, ip)
		return true
	}
	return false
}

// Lookup returns the target registered for ip.
func (n *Negotiator) Lookup(ip netip.Addr) (Target, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.registry[ip.Unmap()]
	return t, ok
}

// Len returns the number of registered targets.
func (n *Negotiator) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.registry)
}

// Accepted returns the number of connections handed to a target.
func (n *Negotiator) Accepted() uint64 {
	return n.accepted.Load()
}

// Rejected returns the number of connections closed without a target.
func (n *Negotiator) Rejected() uint64 {
	return n.rejected.Load()
}

func (n *Negotiator) handleAccept(conn net.Conn, connID string) {
	ip, ok := addrIP(conn.RemoteAddr())
	var target Target
	if ok {
		target, ok = n.Lookup(ip)
	}
	if !ok {
		n.reject(conn, connID, "no session for address")
		return
	}
	if !target.AcceptDirect(conn) {
		n.reject(conn, connID, "session not waiting")
		return
	}
	n.accepted.Add(1)
	n.logger.Debug("direct channel handed over", "ip", ip, "conn_id", connID)
}

func (n *Negotiator) reject(conn net.Conn, connID, reason string) {
	n.rejected.Add(1)
	remote := conn.RemoteAddr().String()
	_ = conn.Close()
	n.logger.Debug("direct channel rejected", "remote", remote, "reason", reason)

	if n.config.ProtocolLogger != nil {
		n.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerSession,
			Category:     log.CategoryState,
			Channel:      log.ChannelDirect,
			RemoteAddr:   remote,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityDirectChannel,
				OldState: "ACCEPTED",
				NewState: "REJECTED",
				Reason:   reason,
			},
		})
	}
}

func addrIP(addr net.Addr) (netip.Addr, bool) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	case nil:
		return netip.Addr{}, false
	default:
		ap, err := netip.ParseAddrPort(a.String())
		if err != nil {
			return netip.Addr{}, false
		}
		return ap.Addr().Unmap(), true
	}
}
