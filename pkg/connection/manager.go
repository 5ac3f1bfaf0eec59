package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/transport"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Connection errors.
var (
	ErrManagerClosed = errors.New("connection manager closed")
	ErrNotConnected  = errors.New("not connected")
)

// Defaults for Config.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultDialTimeout = 5 * time.Second
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates the primary channel is up.
	StateConnected

	// StateDirectActive indicates the direct channel replaced the primary.
	StateDirectActive

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDirectActive:
		return "DIRECT_ACTIVE"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens the primary socket. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a Manager.
type Config struct {
	// Dial opens the primary socket (default: net.Dialer).
	Dial DialFunc

	// DialTimeout bounds a single dial attempt (default: 5s).
	DialTimeout time.Duration

	// MaxRetries is the number of extra attempts after a failed dial
	// (default: 3). Negative means no retries.
	MaxRetries int

	// RetryDelay is the fixed wait between attempts (default: 250ms).
	RetryDelay time.Duration

	// Reconnect configures the background reconnect loop.
	Reconnect BackoffConfig

	// MaxLineSize is passed to each transport.Conn.
	MaxLineSize int

	// WriteTimeout bounds a single line write (0 = none).
	WriteTimeout time.Duration

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives frame and state events (optional).
	ProtocolLogger log.Logger

	// OnLine is called from a read loop for every received line.
	OnLine func(ch log.Channel, line []byte)

	// OnFrameError is called from a read loop when framing fails.
	OnFrameError func(ch log.Channel, err error)

	// OnConnectionLost is called when the active channel drops without a
	// local close. It runs on the dropped socket's read loop.
	OnConnectionLost func(ch log.Channel, err error)

	// OnRetire is called after a live socket is closed locally to make way
	// for another one: by Connect to a new address, by EnterDirect for the
	// primary, and by Disconnect. Close does not call it.
	OnRetire func(ch log.Channel)

	// OnStateChange is called after every state transition.
	OnStateChange func(oldState, newState State)

	// OnReconnecting is called before each background reconnect attempt.
	OnReconnecting func(attempt int, delay time.Duration)
}

// Manager owns the primary and direct sockets of one device session.
// At most one of each is live, and only one is active at a time.
type Manager struct {
	config Config
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	address       string
	primary       *transport.Conn
	direct        *transport.Conn
	autoReconnect bool
	loopStarted   bool

	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc

	// Reconnect loop
	wg          sync.WaitGroup
	reconnectCh chan struct{}

	// Retired sockets waiting for their read loops to exit
	collect sync.WaitGroup
}

// NewManager creates a connection manager.
func NewManager(config Config) *Manager {
	if config.Dial == nil {
		var d net.Dialer
		config.Dial = d.DialContext
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:      config,
		logger:      logger,
		state:       StateDisconnected,
		backoff:     NewBackoffWithConfig(config.Reconnect),
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the device address of the last Connect call.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// IsConnected reports whether the active channel is up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected || m.state == StateDirectActive
}

// Channel returns the active channel, if any.
func (m *Manager) Channel() (log.Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateConnected:
		return log.ChannelPrimary, true
	case StateDirectActive:
		return log.ChannelDirect, true
	}
	return log.ChannelPrimary, false
}

// LocalAddr returns the local address of the primary socket, or nil.
func (m *Manager) LocalAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary == nil {
		return nil
	}
	return m.primary.LocalAddr()
}

// Connect opens the primary channel to address. A call while another
// connect is underway fails with wire.ErrInProgress. Connecting to the
// current address while connected is a no-op; a different address replaces
// the existing sockets.
func (m *Manager) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case StateConnecting:
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", address, wire.ErrInProgress)
	case StateConnected, StateDirectActive:
		if address == m.address {
			m.mu.Unlock()
			return nil
		}
	}

	oldState := m.state
	oldPrimary, oldDirect := m.primary, m.direct
	m.primary, m.direct = nil, nil
	m.address = address
	m.state = StateConnecting
	m.mu.Unlock()

	m.retireLive(oldPrimary, log.ChannelPrimary)
	m.retireLive(oldDirect, log.ChannelDirect)
	m.notifyState(oldState, StateConnecting, address)

	conn, err := m.dialWithRetry(ctx, address)
	if err != nil {
		m.mu.Lock()
		if m.state != StateConnecting {
			// Closed meanwhile.
			m.mu.Unlock()
			return err
		}
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyState(StateConnecting, StateDisconnected, err.Error())
		return err
	}

	return m.install(conn, StateConnecting)
}

// dialWithRetry makes one attempt plus up to MaxRetries more, waiting
// RetryDelay between them.
func (m *Manager) dialWithRetry(ctx context.Context, address string) (net.Conn, error) {
	retry := NewFixedBackoff(m.config.RetryDelay)
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("connect %s: %w: %v", address, wire.ErrConnectionFailed, ctx.Err())
			case <-m.ctx.Done():
				return nil, ErrManagerClosed
			case <-time.After(retry.Next()):
			}
		}

		conn, err := m.dialOnce(ctx, address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		m.logger.Debug("dial failed", "address", address, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("connect %s after %d attempts: %w: %v",
		address, m.config.MaxRetries+1, wire.ErrConnectionFailed, lastErr)
}

func (m *Manager) dialOnce(ctx context.Context, address string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
	defer cancel()
	return m.config.Dial(dialCtx, "tcp", address)
}

// install makes conn the primary channel if the manager is still in from.
// Otherwise the socket is closed.
func (m *Manager) install(conn net.Conn, from State) error {
	c := m.newConn(conn, log.ChannelPrimary)

	m.mu.Lock()
	if m.state != from {
		state := m.state
		m.mu.Unlock()
		_ = conn.Close()
		if state == StateClosed {
			return ErrManagerClosed
		}
		// Someone else already connected.
		return nil
	}
	m.primary = c
	m.state = StateConnected
	m.backoff.Reset()
	address := m.address
	m.mu.Unlock()

	c.Start()
	m.logger.Debug("primary channel connected", "address", address, "conn_id", c.ID())
	m.notifyState(from, StateConnected, "")
	return nil
}

// EnterDirect installs conn as the direct channel and retires the primary.
// The caller hands over ownership of conn; it is closed on failure.
func (m *Manager) EnterDirect(conn net.Conn) error {
	c := m.newConn(conn, log.ChannelDirect)

	m.mu.Lock()
	if m.state != StateConnected {
		state := m.state
		m.mu.Unlock()
		_ = conn.Close()
		if state == StateClosed {
			return ErrManagerClosed
		}
		return fmt.Errorf("enter direct mode: %w", ErrNotConnected)
	}
	oldPrimary := m.primary
	m.primary = nil
	m.direct = c
	m.state = StateDirectActive
	m.mu.Unlock()

	c.Start()
	m.retireLive(oldPrimary, log.ChannelPrimary)
	m.logger.Debug("direct channel active", "remote", c.RemoteAddr(), "conn_id", c.ID())
	m.notifyState(StateConnected, StateDirectActive, "")
	return nil
}

// ExitDirect retires the direct channel. The manager is disconnected
// afterwards; reconnect the primary with Connect.
func (m *Manager) ExitDirect() {
	m.mu.Lock()
	if m.state != StateDirectActive {
		m.mu.Unlock()
		return
	}
	d := m.direct
	m.direct = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.retire(d)
	m.notifyState(StateDirectActive, StateDisconnected, "direct mode disabled")
}

// Send writes one terminated line on the active channel and reports which
// channel carried it.
func (m *Manager) Send(line []byte) (log.Channel, error) {
	m.mu.Lock()
	var (
		c  *transport.Conn
		ch log.Channel
	)
	switch m.state {
	case StateConnected:
		c, ch = m.primary, log.ChannelPrimary
	case StateDirectActive:
		c, ch = m.direct, log.ChannelDirect
	}
	m.mu.Unlock()

	if c == nil {
		return ch, fmt.Errorf("send: %w", wire.ErrConnectionLost)
	}
	if err := c.Send(line); err != nil {
		return ch, fmt.Errorf("send on %s channel: %w: %v", ch, wire.ErrConnectionLost, err)
	}
	return ch, nil
}

// Disconnect retires both sockets without reporting a loss.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	p, d := m.primary, m.direct
	m.primary, m.direct = nil, nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.retireLive(p, log.ChannelPrimary)
	m.retireLive(d, log.ChannelDirect)
	if oldState != StateDisconnected {
		m.notifyState(oldState, StateDisconnected, "disconnect")
	}
}

// Close retires both sockets and stops the reconnect loop. It does not wait
// for retired read loops; use Wait for that.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	p, d := m.primary, m.direct
	m.primary, m.direct = nil, nil
	m.state = StateClosed
	m.mu.Unlock()

	m.cancel()
	m.retire(p)
	m.retire(d)
	m.notifyState(oldState, StateClosed, "")

	m.wg.Wait()
}

// Wait blocks until every retired socket's read loop has exited. Calling it
// from a line callback deadlocks.
func (m *Manager) Wait() {
	m.collect.Wait()
}

func (m *Manager) newConn(conn net.Conn, ch log.Channel) *transport.Conn {
	return transport.NewConn(conn, transport.ConnConfig{
		Logger:       m.config.ProtocolLogger,
		Channel:      ch,
		MaxLineSize:  m.config.MaxLineSize,
		WriteTimeout: m.config.WriteTimeout,
		OnLine: func(_ *transport.Conn, line []byte) {
			if m.config.OnLine != nil {
				m.config.OnLine(ch, line)
			}
		},
		OnError: func(_ *transport.Conn, err error) {
			if m.config.OnFrameError != nil {
				m.config.OnFrameError(ch, err)
			}
		},
		OnClose: m.handleClose,
	})
}

// retire marks c closed and hands it to a collector goroutine that waits
// for the read loop to exit. Never blocks.
func (m *Manager) retire(c *transport.Conn) {
	if c == nil {
		return
	}
	_ = c.Close()
	m.collect.Add(1)
	go func() {
		defer m.collect.Done()
		<-c.Done()
		m.logger.Debug("socket collected", "conn_id", c.ID())
	}()
}

// retireLive retires c and reports it through OnRetire.
func (m *Manager) retireLive(c *transport.Conn, ch log.Channel) {
	if c == nil {
		return
	}
	m.retire(c)
	if m.config.OnRetire != nil {
		m.config.OnRetire(ch)
	}
}

// handleClose runs on c's read loop once it stops.
func (m *Manager) handleClose(c *transport.Conn, err error) {
	m.mu.Lock()
	var ch log.Channel
	switch c {
	case m.primary:
		m.primary = nil
		ch = log.ChannelPrimary
		if m.state != StateConnected {
			m.mu.Unlock()
			return
		}
	case m.direct:
		m.direct = nil
		ch = log.ChannelDirect
		if m.state != StateDirectActive {
			m.mu.Unlock()
			return
		}
	default:
		// Retired socket.
		m.mu.Unlock()
		return
	}

	oldState := m.state
	reconnect := m.autoReconnect && ch == log.ChannelPrimary
	if reconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	m.mu.Unlock()

	if err == nil {
		err = wire.ErrConnectionLost
	}
	m.logger.Debug("connection lost", "channel", ch, "error", err)
	m.notifyState(oldState, newState, err.Error())

	if m.config.OnConnectionLost != nil {
		m.config.OnConnectionLost(ch, err)
	}
	if reconnect {
		m.triggerReconnect()
	}
}

func (m *Manager) notifyState(oldState, newState State, reason string) {
	if m.config.ProtocolLogger != nil {
		m.config.ProtocolLogger.Log(log.Event{
			Timestamp:  time.Now(),
			Layer:      log.LayerSession,
			Category:   log.CategoryState,
			RemoteAddr: m.Address(),
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: oldState.String(),
				NewState: newState.String(),
				Reason:   reason,
			},
		})
	}
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(oldState, newState)
	}
}
