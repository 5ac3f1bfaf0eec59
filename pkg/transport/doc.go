// Package transport provides the line-framed TCP transport used to talk to
// devices.
//
// The transport layer handles:
//   - CRLF line framing with partial-chunk accumulation (LineReader)
//   - Serialized line writes (LineWriter)
//   - A read-loop connection wrapper with two-phase teardown (Conn)
//   - A plain TCP listener for device-initiated connections (Server)
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON objects              │
//	├────────────────────────────────┤
//	│   CRLF line framing            │
//	├────────────────────────────────┤
//	│           TCP                  │
//	├────────────────────────────────┤
//	│          IPv4                  │
//	└────────────────────────────────┘
//
// # Teardown
//
// Conn.Close never blocks and may be called from inside the connection's own
// callbacks. It marks the connection closed and shuts the socket; the read
// loop then exits and closes Done(). Owners that need to release resources
// wait on Done() from a separate goroutine.
package transport
