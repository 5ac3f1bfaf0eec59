// Package music accepts the direct ("music mode") connections that devices
// open back to the client.
//
// A session asks its device to connect to host:port with set_music. The
// Negotiator listens on that port and looks the connecting IP up in its
// registry. The registered Target receives the socket; connections from
// unknown addresses are closed immediately.
//
// The registry is keyed by IPv4 address. A later session for the same
// address replaces the earlier one, and Unregister only removes the entry
// when the caller still owns it.
package music
