// Package connection manages the sockets of one device session.
//
// A Manager owns at most one primary socket (opened to the device) and one
// direct socket (opened by the device in music mode). Only one of them is
// active:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DIRECT_ACTIVE -> DISCONNECTED
//	                                  |
//	                                  +-> DISCONNECTED (loss or Disconnect)
//
// # Connecting
//
// Connect dials the device and retries a bounded number of times with a fixed
// delay (3 retries, 250 ms apart by default). A second Connect while one is
// underway fails with wire.ErrInProgress; exhausting the retries fails with
// wire.ErrConnectionFailed.
//
// # Teardown
//
// Sockets are retired in two phases. Retiring marks a transport.Conn closed
// and shuts the socket without waiting, so it is safe from inside that
// socket's own line callback. A collector goroutine then waits for the read
// loop to exit. Wait blocks until every retired socket has been collected.
//
// # Reconnection
//
// SetAutoReconnect enables a background loop that redials after an
// unexpected loss of the primary socket, using exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s on successful reconnection
//
// Jitter of up to 25% of the base delay is added to every wait.
package connection
