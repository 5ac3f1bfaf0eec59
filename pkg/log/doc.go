// Package log provides structured protocol logging for device sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, session).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of every line exchanged with a device.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/yeelight/bridge.ylog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(adapter, fileLogger)
//
// # Event Types
//
//   - Transport: raw lines in and out (FrameEvent)
//   - Wire: decoded commands, responses and notifications (MessageEvent)
//   - Session: connection and direct-channel state changes (StateChangeEvent)
//
// Malformed lines and accept failures are recorded as ErrorEventData.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .ylog extension.
// The yee-log CLI provides viewing, filtering, statistics and export.
package log
