package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/music"
	"github.com/yeelight-lan/yeelight-go/pkg/pending"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Session defaults.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxRetries    = connection.DefaultMaxRetries
	DefaultRetryDelay    = connection.DefaultRetryDelay
	DefaultDirectTimeout = 5 * time.Second
)

// Session errors.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrNoAddress     = fmt.Errorf("no device address: %w", wire.ErrDeviceNotFound)
	ErrNoNegotiator  = fmt.Errorf("no direct-channel negotiator: %w", wire.ErrConnectionFailed)
)

// Config configures a Session.
type Config struct {
	// Address is the device command endpoint.
	Address netip.AddrPort

	// ID is the device identifier from discovery (optional, used in logs).
	ID string

	// Capabilities are the methods the device advertised for Address.
	Capabilities capability.Set

	// Timeout bounds the wait for each response (default: 5s).
	Timeout time.Duration

	// MaxRetries is the number of extra connect attempts (default: 3).
	// Negative disables retries.
	MaxRetries int

	// RetryDelay is the wait between connect attempts (default: 250ms).
	RetryDelay time.Duration

	// AutoReconnect redials in the background after an unexpected loss of
	// the primary channel.
	AutoReconnect bool

	// DirectTimeout bounds the wait for the device to open the direct
	// channel (default: 5s).
	DirectTimeout time.Duration

	// Negotiator accepts direct channels. Required for EnableDirectMode.
	Negotiator *music.Negotiator

	// Dial replaces the TCP dialer, e.g. in tests.
	Dial connection.DialFunc

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and state events (optional).
	ProtocolLogger log.Logger

	// Observer receives traffic events (optional).
	Observer Observer
}

// ConfigFromDescriptor returns a Config for a discovered device.
func ConfigFromDescriptor(d discovery.Descriptor) Config {
	return Config{
		Address:      d.Address,
		ID:           d.ID,
		Capabilities: d.Capabilities,
	}
}

// Session controls one device over its command channel and, in music mode,
// over the direct channel the device opens back to us.
type Session struct {
	config   Config
	logger   *slog.Logger
	plog     log.Logger
	observer Observer

	manager *connection.Manager
	pending *pending.Table
	store   *props.Store
	handoff music.Handoff

	// direct serializes EnableDirectMode and DisableDirectMode.
	direct sync.Mutex

	mu         sync.RWMutex
	address    netip.AddrPort
	caps       capability.Set
	timeout    time.Duration
	registered netip.Addr
	closed     bool
}

// NewSession creates a session. It does not connect.
func NewSession(config Config) *Session {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.DirectTimeout <= 0 {
		config.DirectTimeout = DefaultDirectTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := config.Observer
	if observer == nil {
		observer = NoopObserver{}
	}

	s := &Session{
		config:   config,
		logger:   logger,
		plog:     log.OrNoop(config.ProtocolLogger),
		observer: observer,
		pending:  pending.New(),
		store:    props.NewStore(),
		address:  config.Address,
		caps:     config.Capabilities,
		timeout:  config.Timeout,
	}
	if config.ID != "" {
		s.logger = s.logger.With("device", config.ID)
	}

	s.manager = connection.NewManager(connection.Config{
		Dial:             config.Dial,
		DialTimeout:      config.Timeout,
		MaxRetries:       config.MaxRetries,
		RetryDelay:       config.RetryDelay,
		Logger:           s.logger,
		ProtocolLogger:   config.ProtocolLogger,
		OnLine:           s.handleLine,
		OnFrameError:     s.handleFrameError,
		OnConnectionLost: s.handleConnectionLost,
		OnRetire:         s.handleRetire,
		OnStateChange:    s.handleStateChange,
	})
	if config.AutoReconnect {
		s.manager.SetAutoReconnect(true)
	}
	return s
}

// Connect opens the primary channel to the configured address.
func (s *Session) Connect(ctx context.Context) error {
	return s.ConnectTo(ctx, s.Address())
}

// ConnectTo opens the primary channel to addr. Connecting to a different
// address than before clears the capability set and property state; set
// the capabilities advertised for the new address with SetCapabilities.
func (s *Session) ConnectTo(ctx context.Context, addr netip.AddrPort) error {
	if !addr.IsValid() {
		return ErrNoAddress
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.address.IsValid() && addr != s.address {
		s.caps = 0
		s.store.Reset()
	}
	s.address = addr
	s.registerLocked(addr.Addr())
	s.mu.Unlock()

	return s.manager.Connect(ctx, addr.String())
}

// registerLocked claims ip in the negotiator registry. Callers hold s.mu.
func (s *Session) registerLocked(ip netip.Addr) {
	n := s.config.Negotiator
	if n == nil {
		return
	}
	ip = ip.Unmap()
	if s.registered.IsValid() && s.registered != ip {
		n.Unregister(s.registered, s)
	}
	n.Register(ip, s)
	s.registered = ip
}

// IsConnected reports whether the active channel (primary or direct) is up.
func (s *Session) IsConnected() bool {
	return s.manager.IsConnected()
}

// State returns the connection state.
func (s *Session) State() connection.State {
	return s.manager.State()
}

// DirectActive reports whether commands go over the direct channel.
func (s *Session) DirectActive() bool {
	return s.manager.State() == connection.StateDirectActive
}

// Close releases the session's sockets and its registry entry. Pending
// commands fail with wire.ErrConnectionLost.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.registered.IsValid() && s.config.Negotiator != nil {
		s.config.Negotiator.Unregister(s.registered, s)
	}
	s.registered = netip.Addr{}
	s.mu.Unlock()

	s.manager.Close()
	s.pending.FailAll(fmt.Errorf("session closed: %w", wire.ErrConnectionLost))
	s.manager.Wait()
	return nil
}

// Address returns the device address.
func (s *Session) Address() netip.AddrPort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// ID returns the device identifier, if known.
func (s *Session) ID() string {
	return s.config.ID
}

// Capabilities returns the capability set used to gate commands.
func (s *Session) Capabilities() capability.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// SetCapabilities replaces the capability set.
func (s *Session) SetCapabilities(caps capability.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

// SetTimeout sets the response timeout for subsequent commands.
func (s *Session) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Timeout returns the response timeout.
func (s *Session) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeout
}

// Properties returns the last known device state.
func (s *Session) Properties() props.Properties {
	return s.store.Snapshot()
}

// OnPropertiesChanged registers fn to be called after every state change.
// fn runs on a read loop and must not block.
func (s *Session) OnPropertiesChanged(fn props.ChangeFunc) {
	s.store.OnChange(fn)
}

// RefreshProperties queries every property. The store is updated when the
// reply arrives. On the direct channel there is no reply and the store is
// left unchanged.
func (s *Session) RefreshProperties(ctx context.Context) error {
	names := make([]any, len(props.Names))
	for i, n := range props.Names {
		names[i] = n
	}
	return s.execute(ctx, opGetProp, LightMain, func() ([]any, error) {
		return names, nil
	})
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// execute runs one operation: build and validate params, plan and gate the
// commands, make sure a channel is up, then send each command in order.
// A failing command stops the plan; earlier commands are not undone.
func (s *Session) execute(ctx context.Context, op operation, light LightType, build func() ([]any, error)) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	params, err := build()
	if err != nil {
		s.observer.CommandCompleted(string(op.main), log.ChannelPrimary, wire.ResultOf(err), 0)
		return fmt.Errorf("%s: %w", op.name, err)
	}

	steps, err := plan(op, light, s.Capabilities())
	if err != nil {
		s.observer.CommandCompleted(string(op.main), log.ChannelPrimary, wire.ResultOf(err), 0)
		return fmt.Errorf("%s: %w", op.name, err)
	}

	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	for _, st := range steps {
		if _, err := s.send(ctx, st.method, params); err != nil {
			if len(steps) > 1 {
				s.logger.Debug("plan stopped", "operation", op.name, "light", st.light, "error", err)
			}
			return err
		}
	}
	return nil
}

func (s *Session) ensureConnected(ctx context.Context) error {
	if s.manager.IsConnected() {
		return nil
	}
	return s.Connect(ctx)
}

// send writes one command on the active channel. On the primary channel it
// waits for the matching response; on the direct channel it returns as
// soon as the line is written.
func (s *Session) send(ctx context.Context, method capability.Method, params []any) ([]any, error) {
	id, ch, err := s.pending.Register()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	cmd := wire.NewCommand(id, string(method), params...)
	line, err := wire.EncodeCommand(cmd)
	if err != nil {
		s.pending.Remove(id)
		return nil, fmt.Errorf("%s: %w: %v", method, wire.ErrInvalidParams, err)
	}

	start := time.Now()
	channel, err := s.manager.Send(line)
	if err != nil {
		s.pending.Remove(id)
		s.observer.CommandCompleted(string(method), channel, wire.ResultOf(err), 0)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	s.logMessage(log.DirectionOut, channel, &log.MessageEvent{
		Type:    log.MessageTypeCommand,
		ID:      id,
		Method:  string(method),
		Payload: cmd.Params,
	})

	if channel == log.ChannelDirect {
		s.pending.Remove(id)
		s.observer.CommandCompleted(string(method), channel, wire.ResultSuccess, 0)
		return nil, nil
	}

	o := s.pending.Wait(ctx, id, ch, s.Timeout())
	rtt := time.Since(start)
	s.observer.CommandCompleted(string(method), channel, o.Result, rtt)
	if o.Err != nil {
		return nil, fmt.Errorf("%s: %w", method, o.Err)
	}
	return o.Values, nil
}

// handleLine runs on a read loop for every received line.
func (s *Session) handleLine(ch log.Channel, line []byte) {
	frame, err := wire.DecodeFrame(line)
	if err != nil {
		s.dropFrame(ch, err)
		return
	}

	switch frame.Type {
	case wire.FrameResponse:
		s.handleResponse(ch, frame)
	case wire.FrameNotification:
		s.handleNotification(ch, frame)
	}
}

func (s *Session) handleResponse(ch log.Channel, frame *wire.Frame) {
	result := frame.ResultCode()
	s.logMessage(log.DirectionIn, ch, &log.MessageEvent{
		Type:    log.MessageTypeResponse,
		ID:      frame.ID,
		Result:  &result,
		Payload: frame.Result,
	})

	var o pending.Outcome
	switch frame.Kind {
	case wire.ResponseProps:
		if err := s.store.ApplyFull(frame.Result); err != nil {
			s.logger.Debug("property refresh partially applied", "error", err)
		}
		o = pending.Success(frame.Result)
	case wire.ResponseOK:
		o = pending.Success(frame.Result)
	default:
		o = pending.Failure(frame.Err())
	}

	if !s.pending.Resolve(frame.ID, o) {
		s.logger.Debug("response without waiter", "id", frame.ID, "result", result)
	}
}

func (s *Session) handleNotification(ch log.Channel, frame *wire.Frame) {
	s.logMessage(log.DirectionIn, ch, &log.MessageEvent{
		Type:    log.MessageTypeNotification,
		Method:  frame.Method,
		Payload: frame.Params,
	})

	if !frame.IsProps() {
		s.logger.Debug("ignoring notification", "method", frame.Method)
		return
	}
	changed, err := s.store.MergePartial(frame.Params)
	if err != nil {
		s.logger.Debug("notification partially applied", "error", err)
	}
	s.observer.NotificationReceived(changed)
}

func (s *Session) handleFrameError(ch log.Channel, err error) {
	s.dropFrame(ch, err)
}

func (s *Session) dropFrame(ch log.Channel, err error) {
	s.logger.Debug("dropping frame", "channel", ch, "error", err)
	s.observer.FrameDropped(err)
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryError,
		Channel:    ch,
		RemoteAddr: s.remote(),
		DeviceID:   s.config.ID,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: "decode frame",
		},
	})
}

// handleConnectionLost fails every waiter so callers see the loss instead
// of a timeout.
func (s *Session) handleConnectionLost(ch log.Channel, err error) {
	n := s.pending.FailAll(fmt.Errorf("%s channel: %w", ch, wire.ErrConnectionLost))
	s.logger.Debug("channel lost", "channel", ch, "failed_commands", n, "error", err)
}

// handleRetire fails the waiters of a socket the session replaced. Their
// responses can no longer arrive.
func (s *Session) handleRetire(ch log.Channel) {
	n := s.pending.FailAll(fmt.Errorf("%s channel closed: %w", ch, wire.ErrConnectionLost))
	if n > 0 {
		s.logger.Debug("channel retired", "channel", ch, "failed_commands", n)
	}
}

func (s *Session) handleStateChange(oldState, newState connection.State) {
	s.observer.StateChanged(oldState, newState)
}

func (s *Session) logMessage(dir log.Direction, ch log.Channel, msg *log.MessageEvent) {
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		Channel:    ch,
		RemoteAddr: s.remote(),
		DeviceID:   s.config.ID,
		Message:    msg,
	})
}

func (s *Session) remote() string {
	if addr := s.Address(); addr.IsValid() {
		return addr.String()
	}
	return ""
}

var _ music.Target = (*Session)(nil)
