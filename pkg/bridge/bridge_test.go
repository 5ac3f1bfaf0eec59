package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	testmock "github.com/yeelight-lan/yeelight-go/internal/testharness/mock"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

const deviceID = "0x000000000015243f"

// published records the last payload per topic.
type published struct {
	mu   sync.Mutex
	last map[string][]byte
	n    map[string]int
}

func (p *published) record(topic string, _ byte, _ bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[topic] = append([]byte(nil), payload...)
	p.n[topic]++
	return nil
}

func (p *published) get(topic string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.last[topic]
	return string(v), ok
}

func (p *published) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n[topic]
}

func (p *published) state(t *testing.T, topic string) (command.State, bool) {
	raw, ok := p.get(topic)
	if !ok {
		return command.State{}, false
	}
	var s command.State
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s, true
}

type fixture struct {
	bridge  *Bridge
	device  *testmock.Device
	session *device.Session
	pub     *published
	topics  Topics
	onSet   MessageHandler
	onGet   MessageHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	support := capability.NewSet(capability.GetProp, capability.SetPower, capability.SetBright,
		capability.SetRGB, capability.SetCtAbx, capability.Toggle)
	d := testmock.NewDevice(deviceID, support)
	require.NoError(t, d.Start(ctx, "127.0.0.1:0"))
	t.Cleanup(func() { _ = d.Stop() })

	f := &fixture{
		device: d,
		pub:    &published{last: make(map[string][]byte), n: make(map[string]int)},
		topics: Topics{Prefix: "home/yeelight"},
	}

	client := NewMockClient(t)
	client.EXPECT().Subscribe(f.topics.AllSet(), byte(1), mock.Anything).
		Run(func(_ string, _ byte, h MessageHandler) { f.onSet = h }).Return(nil)
	client.EXPECT().Subscribe(f.topics.AllGet(), byte(1), mock.Anything).
		Run(func(_ string, _ byte, h MessageHandler) { f.onGet = h }).Return(nil)
	client.EXPECT().Publish(mock.Anything, byte(1), mock.Anything, mock.Anything).
		RunAndReturn(f.pub.record).Maybe()

	registry := device.NewRegistry()
	b, err := New(Config{Client: client, Registry: registry, Prefix: "home/yeelight", QoS: 1})
	require.NoError(t, err)
	f.bridge = b

	s := device.NewSession(device.Config{
		Address:      d.Addr(),
		ID:           deviceID,
		Capabilities: support,
		Timeout:      2 * time.Second,
		RetryDelay:   10 * time.Millisecond,
		Observer:     b.Observer(deviceID),
	})
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, registry.Add(s))
	f.session = s

	require.NoError(t, b.Start(ctx))
	t.Cleanup(b.Stop)
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{Registry: device.NewRegistry()})
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = New(Config{Client: NewMockClient(t)})
	assert.ErrorIs(t, err, ErrNoRegistry)
}

func TestBridgePublishesOnStart(t *testing.T) {
	f := newFixture(t)

	assert.Eventually(t, func() bool {
		v, _ := f.pub.get(f.topics.Availability(deviceID))
		return v == StatusOnline
	}, 2*time.Second, 10*time.Millisecond)

	state, ok := f.pub.state(t, f.topics.State(deviceID))
	require.True(t, ok)
	assert.Equal(t, deviceID, state.ID)
	assert.True(t, state.Connected)

	assert.ErrorIs(t, f.bridge.Start(context.Background()), ErrAlreadyStarted)
}

func TestBridgeSetCommand(t *testing.T) {
	f := newFixture(t)

	f.onSet(f.topics.Set(deviceID), []byte(`{"state":"on","brightness":30}`))

	assert.Equal(t, []string{"set_power", "set_bright"}, f.device.Methods())
	assert.Eventually(t, func() bool {
		s, ok := f.pub.state(t, f.topics.State(deviceID))
		return ok && s.State == command.StateOn && s.Brightness == 30
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, f.pub.count(f.topics.Error(deviceID)))
}

func TestBridgeReportsErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("InvalidDocument", func(t *testing.T) {
		f.onSet(f.topics.Set(deviceID), []byte(`{"state":"dim"}`))

		raw, ok := f.pub.get(f.topics.Error(deviceID))
		require.True(t, ok)
		var report errorReport
		require.NoError(t, json.Unmarshal([]byte(raw), &report))
		assert.Equal(t, wire.ResultInvalidParams.String(), report.Result)
		assert.Empty(t, f.device.Methods())
	})

	t.Run("Unsupported", func(t *testing.T) {
		f.onSet(f.topics.Set(deviceID), []byte(`{"hs":{"hue":10,"sat":10}}`))

		raw, _ := f.pub.get(f.topics.Error(deviceID))
		assert.Contains(t, raw, wire.ResultMethodNotSupported.String())
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		before := f.pub.count(f.topics.Error("nope"))
		f.onSet(f.topics.Set("nope"), []byte(`{"state":"on"}`))
		f.onSet("other/topic", []byte(`{"state":"on"}`))
		assert.Equal(t, before, f.pub.count(f.topics.Error("nope")))
	})
}

func TestBridgeGetRefreshes(t *testing.T) {
	f := newFixture(t)

	f.onGet(f.topics.Get(deviceID), nil)
	assert.Equal(t, []string{"get_prop"}, f.device.Methods())
}

func TestBridgeAvailability(t *testing.T) {
	f := newFixture(t)
	assert.Eventually(t, func() bool {
		v, _ := f.pub.get(f.topics.Availability(deviceID))
		return v == StatusOnline
	}, 2*time.Second, 10*time.Millisecond)

	f.device.Disconnect()

	assert.Eventually(t, func() bool {
		v, _ := f.pub.get(f.topics.Availability(deviceID))
		return v == StatusOffline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeStopMarksOffline(t *testing.T) {
	f := newFixture(t)
	f.bridge.Stop()

	v, ok := f.pub.get(f.topics.Availability(deviceID))
	require.True(t, ok)
	assert.Equal(t, StatusOffline, v)
}
