package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	result := wire.ResultTimeout
	rtt := 42 * time.Millisecond
	original := Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Channel:      ChannelDirect,
		RemoteAddr:   "192.168.1.239:55443",
		DeviceID:     "0x000000000015243f",
		Message: &MessageEvent{
			Type:      MessageTypeResponse,
			ID:        17,
			Method:    "set_rgb",
			Result:    &result,
			Payload:   []any{"ok"},
			RoundTrip: &rtt,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.ConnectionID != original.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, original.ConnectionID)
	}
	if decoded.Channel != ChannelDirect {
		t.Errorf("Channel: got %v, want DIRECT", decoded.Channel)
	}
	if decoded.RemoteAddr != original.RemoteAddr || decoded.DeviceID != original.DeviceID {
		t.Errorf("identifiers: got %q/%q", decoded.RemoteAddr, decoded.DeviceID)
	}
	if decoded.Message == nil {
		t.Fatal("Message is nil")
	}
	if decoded.Message.ID != 17 || decoded.Message.Method != "set_rgb" {
		t.Errorf("Message: got %+v", decoded.Message)
	}
	if decoded.Message.Result == nil || *decoded.Message.Result != wire.ResultTimeout {
		t.Errorf("Result: got %v", decoded.Message.Result)
	}
	if decoded.Message.RoundTrip == nil || *decoded.Message.RoundTrip != rtt {
		t.Errorf("RoundTrip: got %v", decoded.Message.RoundTrip)
	}
}

func TestStateAndErrorEventsRoundTrip(t *testing.T) {
	code := -1
	events := []Event{
		{
			Timestamp: time.Now(),
			Layer:     LayerSession,
			Category:  CategoryState,
			StateChange: &StateChangeEvent{
				Entity:   StateEntityDirectChannel,
				OldState: "NEGOTIATING",
				NewState: "ACTIVE",
				Reason:   "device connected",
			},
		},
		{
			Timestamp: time.Now(),
			Layer:     LayerWire,
			Category:  CategoryError,
			Error: &ErrorEventData{
				Layer:   LayerWire,
				Message: "malformed frame",
				Code:    &code,
				Context: "decode",
			},
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if ev.StateChange != nil && *decoded.StateChange != *ev.StateChange {
			t.Errorf("StateChange: got %+v, want %+v", decoded.StateChange, ev.StateChange)
		}
		if ev.Error != nil && (decoded.Error.Message != ev.Error.Message || *decoded.Error.Code != code) {
			t.Errorf("Error: got %+v", decoded.Error)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionOut.String(), "OUT"},
		{LayerSession.String(), "SESSION"},
		{CategoryState.String(), "STATE"},
		{ChannelPrimary.String(), "PRIMARY"},
		{MessageTypeCommand.String(), "COMMAND"},
		{StateEntityDirectChannel.String(), "DIRECT_CHANNEL"},
		{Layer(9).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func frameEvent(conn string, dir Direction, line string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: conn,
		Direction:    dir,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Size: len(line), Data: []byte(line)},
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.ylog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(frameEvent("a", DirectionOut, `{"id":1,"method":"toggle","params":[]}`))
	logger.Log(frameEvent("b", DirectionIn, `{"id":1,"result":["ok"]}`))
	logger.Log(frameEvent("a", DirectionIn, `{"id":1,"result":["ok"]}`))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Logging after close is ignored.
	logger.Log(frameEvent("a", DirectionIn, "late"))
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	r, err := NewFilteredReader(path, Filter{ConnectionID: "a"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	var n int
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.ConnectionID != "a" {
			t.Errorf("ConnectionID = %q, want a", ev.ConnectionID)
		}
		n++
	}
	if n != 2 {
		t.Errorf("read %d events, want 2", n)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.ylog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 20 {
				logger.Log(frameEvent("c", DirectionIn, "x"))
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	var n int
	for {
		if _, err := r.Next(); err != nil {
			break
		}
		n++
	}
	if n != 200 {
		t.Errorf("read %d events, want 200", n)
	}
}

func TestFilterMatches(t *testing.T) {
	dir := DirectionOut
	ch := ChannelDirect
	start := time.Now()

	msg := Event{
		Timestamp: start.Add(time.Second),
		Direction: DirectionOut,
		Channel:   ChannelDirect,
		Message:   &MessageEvent{Type: MessageTypeCommand, Method: "set_rgb"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"direction", Filter{Direction: &dir}, true},
		{"channel", Filter{Channel: &ch}, true},
		{"method", Filter{Method: "set_rgb"}, true},
		{"other method", Filter{Method: "toggle"}, false},
		{"time start", Filter{TimeStart: &start}, true},
		{"time end", Filter{TimeEnd: &start}, false},
		{"device", Filter{DeviceID: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(msg); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadAllAndStreamReader(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := range 3 {
		_ = enc.Encode(frameEvent("s", Direction(i%2), "line"))
	}

	events, err := ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("ReadAll() returned %d events, want 3", len(events))
	}

	in := DirectionIn
	r := NewStreamReader(bytes.NewReader(buf.Bytes()), Filter{Direction: &in})
	defer r.Close()
	var n int
	for {
		if _, err := r.Next(); err != nil {
			break
		}
		n++
	}
	if n != 2 {
		t.Errorf("stream reader returned %d events, want 2", n)
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	m.Log(frameEvent("m", DirectionIn, "x"))
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	c := &captureLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should return non-nil loggers unchanged")
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	result := wire.ResultSuccess
	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message:      &MessageEvent{Type: MessageTypeResponse, ID: 5, Result: &result},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["msg"] != "protocol" {
		t.Errorf("msg = %v, want protocol", entry["msg"])
	}
	if entry["conn_id"] != "conn-123" {
		t.Errorf("conn_id = %v", entry["conn_id"])
	}
	if entry["msg_id"] != float64(5) {
		t.Errorf("msg_id = %v, want 5", entry["msg_id"])
	}
	if entry["result"] != "SUCCESS" {
		t.Errorf("result = %v, want SUCCESS", entry["result"])
	}
}
