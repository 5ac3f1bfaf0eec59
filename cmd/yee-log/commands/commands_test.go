package commands

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

var t0 = time.Date(2026, 3, 2, 19, 4, 11, 250000000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ylog")
	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func sampleEvents() []log.Event {
	ok := wire.ResultSuccess
	failed := wire.ResultError
	rtt := 12 * time.Millisecond
	return []log.Event{
		{
			Timestamp: t0, ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			DeviceID: "0x1", RemoteAddr: "192.168.1.20:55443",
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, ID: 1, Method: "set_power", Payload: []any{"on", "smooth", 500}},
		},
		{
			Timestamp: t0.Add(12 * time.Millisecond), ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			DeviceID: "0x1",
			Message:  &log.MessageEvent{Type: log.MessageTypeResponse, ID: 1, Result: &ok, RoundTrip: &rtt},
		},
		{
			Timestamp: t0.Add(time.Second), ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			DeviceID: "0x1",
			Message:  &log.MessageEvent{Type: log.MessageTypeCommand, ID: 2, Method: "set_bright", Payload: []any{50, "sudden", 0}},
		},
		{
			Timestamp: t0.Add(time.Second + 20*time.Millisecond), ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			DeviceID: "0x1",
			Message:  &log.MessageEvent{Type: log.MessageTypeResponse, ID: 2, Result: &failed},
		},
		{
			Timestamp: t0.Add(2 * time.Second), ConnectionID: "beef0000-0000-4000-8000-000000000002",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Channel: log.ChannelDirect, DeviceID: "0x1",
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, ID: 3, Method: "set_rgb", Payload: []any{255, "sudden", 0}},
		},
		{
			Timestamp: t0.Add(3 * time.Second), ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Layer: log.LayerSession, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "CONNECTED", NewState: "DISCONNECTED", Reason: "EOF"},
		},
		{
			Timestamp: t0.Add(3 * time.Second), ConnectionID: "c0ffee00-0000-4000-8000-000000000001",
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "line too long"},
		},
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	filter, err := FilterOptions{
		Method:    "set_power",
		Channel:   "music",
		Layer:     "Wire",
		Direction: "out",
		Category:  "message",
		TimeStart: "2026-03-02T19:00:00Z",
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, "set_power", filter.Method)
	require.NotNil(t, filter.Channel)
	assert.Equal(t, log.ChannelDirect, *filter.Channel)
	assert.Equal(t, log.LayerWire, *filter.Layer)
	assert.Equal(t, log.DirectionOut, *filter.Direction)
	require.NotNil(t, filter.TimeStart)

	bad := []FilterOptions{
		{Layer: "service"},
		{Direction: "sideways"},
		{Category: "control"},
		{Channel: "udp"},
		{TimeEnd: "yesterday"},
	}
	for _, o := range bad {
		_, err := o.Build()
		assert.Error(t, err, "%+v", o)
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &buf))
	out := buf.String()

	assert.Contains(t, out, "2026-03-02T19:04:11.250000Z [conn:c0ffee00] OUT WIRE/PRIMARY COMMAND")
	assert.Contains(t, out, "Method: set_power")
	assert.Contains(t, out, `Payload: ["on","smooth",500]`)
	assert.Contains(t, out, "Result: SUCCESS")
	assert.Contains(t, out, "RoundTrip: 12.000ms")
	assert.Contains(t, out, "CONNECTED -> DISCONNECTED")
	assert.Contains(t, out, "Message: line too long")

	buf.Reset()
	direct := log.ChannelDirect
	require.NoError(t, RunView(path, log.Filter{Channel: &direct}, &buf))
	assert.Equal(t, 1, strings.Count(buf.String(), "[conn:"))
	assert.Contains(t, buf.String(), "set_rgb")
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.ylog"), log.Filter{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	method := "set_bright"
	require.NoError(t, RunExport(path, "csv", out, log.Filter{Method: method}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2026-03-02T19:04:12.250000Z", "c0ffee00-0000-4000-8000-000000000001", "OUT", "WIRE",
		"MESSAGE", "PRIMARY", "0x1", "", "COMMAND", "2", "set_bright", "",
	}, rows[1])
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", out, log.Filter{}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), len(sampleEvents()))

	assert.Error(t, RunExport(path, "xml", out, log.Filter{}))
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.ylog")

	in := log.DirectionIn
	count, err := RunFilter(path, out, log.Filter{Direction: &in, DeviceID: "0x1"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stats, err := Collect(out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.EventsByDirection[log.DirectionIn])
}

func TestCollect(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	stats, err := Collect(path)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.TotalEvents)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, map[string]int{"set_power": 1, "set_bright": 1, "set_rgb": 1}, stats.Methods)
	assert.Equal(t, 1, stats.Results[wire.ResultSuccess])
	assert.Equal(t, 1, stats.Results[wire.ResultError])
	assert.Equal(t, 1, stats.EventsByChannel[log.ChannelDirect])
	assert.Equal(t, 3*time.Second, stats.TimeRange.End.Sub(stats.TimeRange.Start))

	require.Len(t, stats.Connections, 2)
	primary := stats.Connections["c0ffee00-0000-4000-8000-000000000001"]
	assert.Equal(t, 6, primary.Events)
	assert.Equal(t, "192.168.1.20:55443", primary.RemoteAddr)
	assert.Equal(t, 12*time.Millisecond, primary.MeanRoundTrip())
	assert.Equal(t, log.ChannelDirect, stats.Connections["beef0000-0000-4000-8000-000000000002"].Channel)
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 7")
	assert.Contains(t, out, "set_power:")
	assert.Contains(t, out, "SUCCESS:")
	assert.Contains(t, out, "[c0ffee00] PRIMARY 6 events")
	assert.Contains(t, out, "Mean round trip: 12.000ms over 1 commands")
	assert.Contains(t, out, "Errors: 1")
}
