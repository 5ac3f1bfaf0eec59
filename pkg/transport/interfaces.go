package transport

import (
	"context"
	"net"
)

// LineConn is a line-framed connection with asynchronous teardown.
// Implemented by Conn.
type LineConn interface {
	// ID returns the unique connection identifier.
	ID() string

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send writes one terminated line.
	Send(data []byte) error

	// Close marks the connection closed without waiting.
	Close() error

	// Done is closed after the read loop has exited.
	Done() <-chan struct{}
}

// Listener accepts device-initiated connections.
// Implemented by Server.
type Listener interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop closes the listener.
	Stop() error

	// Addr returns the listen address.
	Addr() net.Addr
}

// Compile-time interface satisfaction checks.
var (
	_ LineConn = (*Conn)(nil)
	_ Listener = (*Server)(nil)
)
