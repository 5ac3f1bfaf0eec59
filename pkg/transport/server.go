package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":54321" or "0.0.0.0:0").
	Address string

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnAccept is called from its own goroutine for every accepted socket.
	// The handler owns conn and must close it if it does not keep it.
	OnAccept func(conn net.Conn, connID string)

	// OnError is called when accepting fails while the server is running.
	OnError func(err error)
}

// Server is a plain TCP listener that hands accepted sockets to a handler.
type Server struct {
	config   ServerConfig
	listener net.Listener

	accepted atomic.Uint64

	// State
	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.OnAccept == nil {
		return nil, fmt.Errorf("OnAccept is required")
	}
	return &Server{config: config}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	// Stop when the parent context ends.
	go func() {
		<-s.ctx.Done()
		_ = s.Stop()
	}()

	return nil
}

// Stop closes the listener and waits for the accept loop to exit.
// Sockets already handed to OnAccept are not closed.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	s.running.Store(false)
	s.cancel()
	err := s.listener.Close()
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	return s.running.Load()
}

// AcceptedCount returns the number of sockets accepted since Start.
func (s *Server) AcceptedCount() uint64 {
	return s.accepted.Load()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("accept error: %w", err))
			}
			// Avoid spinning on persistent errors.
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.accepted.Add(1)
		connID := uuid.New().String()
		s.logAccepted(conn, connID)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.config.OnAccept(conn, connID)
		}()
	}
}

func (s *Server) logAccepted(conn net.Conn, connID string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Channel:      log.ChannelDirect,
		RemoteAddr:   conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			NewState: "ACCEPTED",
		},
	})
}
