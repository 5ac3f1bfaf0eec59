package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
)

// Framing constants.
const (
	// DefaultMaxLineSize is the largest accumulated line accepted (64 KB).
	DefaultMaxLineSize = 65536

	// MaxLogFrameDataSize is the maximum line data included in log events (4 KB).
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrLineTooLong indicates the accumulator exceeded the maximum size
	// without a terminator. The accumulated data is discarded.
	ErrLineTooLong = errors.New("line too long")

	// ErrEmptyLine indicates an attempt to write an empty line.
	ErrEmptyLine = errors.New("line is empty")
)

// frameLogger emits transport-layer frame events.
type frameLogger struct {
	logger     log.Logger
	connID     string
	channel    log.Channel
	remoteAddr string
}

func (fl *frameLogger) logFrame(data []byte, direction log.Direction) {
	if fl.logger == nil {
		return
	}
	fl.logger.Log(makeFrameEvent(data, direction, fl.connID, fl.channel, fl.remoteAddr))
}

// makeFrameEvent creates a log event for a line.
func makeFrameEvent(data []byte, direction log.Direction, connID string, channel log.Channel, remote string) log.Event {
	frameData := data
	truncated := false

	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Channel:      channel,
		RemoteAddr:   remote,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      bytes.Clone(frameData),
			Truncated: truncated,
		},
	}
}

// LineReader accumulates chunks and emits complete lines.
// It is not safe for concurrent use; feed it from one read loop.
type LineReader struct {
	buf         []byte
	maxLineSize int
	handler     func(line []byte)

	frameLogger
}

// NewLineReader creates a reader that calls handler for every non-empty line.
func NewLineReader(handler func(line []byte)) *LineReader {
	return &LineReader{
		maxLineSize: DefaultMaxLineSize,
		handler:     handler,
	}
}

// SetMaxLineSize updates the accumulator limit.
func (lr *LineReader) SetMaxLineSize(size int) {
	lr.maxLineSize = size
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (lr *LineReader) SetLogger(logger log.Logger, connID string, channel log.Channel, remote string) {
	lr.frameLogger = frameLogger{logger: logger, connID: connID, channel: channel, remoteAddr: remote}
}

// Buffered returns the number of bytes waiting for a terminator.
func (lr *LineReader) Buffered() int {
	return len(lr.buf)
}

// Reset discards any partial line.
func (lr *LineReader) Reset() {
	lr.buf = lr.buf[:0]
}

// Feed appends chunk and delivers every complete line. Each line has its
// trailing whitespace removed; empty lines are skipped. The handler receives
// a copy it may retain.
func (lr *LineReader) Feed(chunk []byte) error {
	lr.buf = append(lr.buf, chunk...)

	start := 0
	for {
		i := bytes.IndexByte(lr.buf[start:], '\n')
		if i < 0 {
			break
		}
		raw := lr.buf[start : start+i+1]
		start += i + 1

		lr.logFrame(raw, log.DirectionIn)

		line := bytes.TrimRight(raw, " \t\r\n")
		if len(line) == 0 {
			continue
		}
		if lr.handler != nil {
			lr.handler(bytes.Clone(line))
		}
	}

	// Keep only the unterminated tail.
	rest := copy(lr.buf, lr.buf[start:])
	lr.buf = lr.buf[:rest]

	if lr.maxLineSize > 0 && len(lr.buf) > lr.maxLineSize {
		n := len(lr.buf)
		lr.buf = lr.buf[:0]
		return fmt.Errorf("%w: %d bytes without terminator", ErrLineTooLong, n)
	}
	return nil
}

// LineWriter serializes line writes to an underlying writer.
type LineWriter struct {
	w  io.Writer
	mu sync.Mutex

	frameLogger
}

// NewLineWriter creates a new line writer.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (lw *LineWriter) SetLogger(logger log.Logger, connID string, channel log.Channel, remote string) {
	lw.frameLogger = frameLogger{logger: logger, connID: connID, channel: channel, remoteAddr: remote}
}

// WriteLine writes one already-terminated line.
// Thread-safe: concurrent callers never interleave.
func (lw *LineWriter) WriteLine(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyLine
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(data); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	lw.logFrame(data, log.DirectionOut)
	return nil
}
