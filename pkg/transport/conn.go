package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("connection closed")

// ConnConfig configures a Conn.
type ConnConfig struct {
	// Logger for protocol logging (optional).
	Logger log.Logger

	// Channel tags log events with the socket kind.
	Channel log.Channel

	// MaxLineSize limits the line accumulator (default: 64 KB).
	MaxLineSize int

	// WriteTimeout bounds a single write (0 = no timeout).
	WriteTimeout time.Duration

	// OnLine is called from the read loop for every received line.
	OnLine func(c *Conn, line []byte)

	// OnError is called from the read loop for framing errors. The
	// connection stays open.
	OnError func(c *Conn, err error)

	// OnClose is called once from the read loop after it stops. err is nil
	// when the connection was closed locally.
	OnClose func(c *Conn, err error)
}

// Conn wraps a net.Conn with line framing and a read loop.
type Conn struct {
	conn   net.Conn
	config ConnConfig
	id     string
	remote string

	reader *LineReader
	writer *LineWriter

	mu        sync.Mutex
	started   bool
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps conn. Call Start to begin reading.
func NewConn(conn net.Conn, config ConnConfig) *Conn {
	if config.MaxLineSize == 0 {
		config.MaxLineSize = DefaultMaxLineSize
	}

	c := &Conn{
		conn:   conn,
		config: config,
		id:     uuid.New().String(),
		done:   make(chan struct{}),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		c.remote = addr.String()
	}

	c.reader = NewLineReader(func(line []byte) {
		if c.config.OnLine != nil && !c.closing.Load() {
			c.config.OnLine(c, line)
		}
	})
	c.reader.SetMaxLineSize(config.MaxLineSize)
	c.writer = NewLineWriter(conn)
	if config.Logger != nil {
		c.reader.SetLogger(config.Logger, c.id, config.Channel, c.remote)
		c.writer.SetLogger(config.Logger, c.id, config.Channel, c.remote)
	}
	return c
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Start launches the read loop. Subsequent calls are ignored.
func (c *Conn) Start() {
	c.mu.Lock()
	if c.started || c.closing.Load() {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.logState("", "CONNECTED", "")
	go c.readLoop()
}

// Send writes one terminated line.
func (c *Conn) Send(data []byte) error {
	if c.closing.Load() {
		return ErrConnClosed
	}
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := c.writer.WriteLine(data); err != nil {
		if c.closing.Load() {
			return ErrConnClosed
		}
		return err
	}
	return nil
}

// Close marks the connection closed and shuts the socket. It never waits
// for the read loop and is safe to call from OnLine or OnClose.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing.Store(true)
		started := c.started
		c.mu.Unlock()

		err = c.conn.Close()
		if !started {
			close(c.done)
		}
	})
	return err
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closing.Load()
}

// Done is closed once the read loop has exited and OnClose has returned.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer close(c.done)

	buf := make([]byte, 4096)
	var readErr error
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if ferr := c.reader.Feed(buf[:n]); ferr != nil {
				c.logError(ferr)
				if c.config.OnError != nil {
					c.config.OnError(c, ferr)
				}
			}
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if c.closing.Load() {
		readErr = nil
	} else {
		c.closing.Store(true)
		_ = c.conn.Close()
	}

	reason := "closed"
	if readErr != nil {
		reason = readErr.Error()
	}
	c.logState("CONNECTED", "DISCONNECTED", reason)

	if c.config.OnClose != nil {
		c.config.OnClose(c, readErr)
	}
}

func (c *Conn) logState(oldState, newState, reason string) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Channel:      c.config.Channel,
		RemoteAddr:   c.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Conn) logError(err error) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Channel:      c.config.Channel,
		RemoteAddr:   c.remote,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: "read",
		},
	})
}
