package interactive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeelight-lan/yeelight-go/internal/testharness/mock"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/discovery"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
)

var lampSupport = []capability.Method{
	capability.GetProp, capability.SetPower, capability.Toggle, capability.SetBright,
	capability.SetCtAbx, capability.SetRGB, capability.SetName,
}

func startLamp(t *testing.T) *mock.Device {
	t.Helper()
	d := mock.NewDevice("0x00000000000000b1", capability.NewSet(lampSupport...))
	require.NoError(t, d.Start(context.Background(), "127.0.0.1:0"))
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func newSession(desc discovery.Descriptor) *device.Session {
	sc := device.ConfigFromDescriptor(desc)
	sc.Timeout = 2 * time.Second
	sc.RetryDelay = 10 * time.Millisecond
	return device.NewSession(sc)
}

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := newShell(Config{NewSession: newSession}, &out)
	t.Cleanup(func() { _ = s.Close() })
	return s, &out
}

func TestExec(t *testing.T) {
	ctx := context.Background()
	lamp := startLamp(t)
	s := newSession(discovery.Descriptor{Address: lamp.Addr(), ID: lamp.ID, Capabilities: capability.NewSet(lampSupport...)})
	t.Cleanup(func() { _ = s.Close() })

	var out bytes.Buffer
	require.NoError(t, Exec(ctx, s, []string{"on"}, Options{}, &out))
	require.NoError(t, Exec(ctx, s, []string{"bright", "35"}, Options{Transition: ptr(0)}, &out))
	assert.Equal(t, "ok\nok\n", out.String())
	assert.Equal(t, []any{35, "sudden", 500}, lamp.Received()[1].Params)

	state := lamp.State()
	assert.True(t, state.Power)
	assert.Equal(t, 35, state.Bright)

	out.Reset()
	lamp.Update(func(p *props.Properties) { p.Name = "desk" })
	require.NoError(t, Exec(ctx, s, []string{"props"}, Options{}, &out))
	assert.Contains(t, out.String(), `"name": "desk"`)
	assert.Contains(t, out.String(), `"brightness": 35`)

	out.Reset()
	require.NoError(t, Exec(ctx, s, []string{"caps"}, Options{}, &out))
	assert.Contains(t, out.String(), "set_bright")

	err := Exec(ctx, s, []string{"hsv", "10", "20"}, Options{}, &out)
	assert.Error(t, err)
	assert.NotContains(t, lamp.Methods(), "set_hsv")
}

func TestShellConnectAndControl(t *testing.T) {
	ctx := context.Background()
	lamp := startLamp(t)
	sh, out := newTestShell(t)

	assert.False(t, sh.Handle(ctx, "on"))
	assert.Contains(t, out.String(), "No device selected")

	out.Reset()
	sh.Handle(ctx, "connect "+lamp.Addr().String())
	assert.Contains(t, out.String(), "Connected to "+lamp.Addr().String())

	sh.Handle(ctx, "transition 0")
	sh.Handle(ctx, "ct 2700")
	assert.Equal(t, 2700, lamp.State().CT)
	assert.Equal(t, []any{2700, "sudden", 500}, lamp.Received()[0].Params)

	out.Reset()
	sh.Handle(ctx, "bright 0")
	assert.Contains(t, out.String(), "Error: brightness")

	out.Reset()
	sh.Handle(ctx, "devices")
	assert.Contains(t, out.String(), "* 1")
	assert.Contains(t, out.String(), lamp.Addr().String())

	assert.True(t, sh.Handle(ctx, "quit"))
}

func TestShellUse(t *testing.T) {
	ctx := context.Background()
	first, second := startLamp(t), startLamp(t)
	sh, out := newTestShell(t)

	require.NotNil(t, sh.add(discovery.Descriptor{Address: first.Addr(), Capabilities: capability.NewSet(lampSupport...)}))
	require.NotNil(t, sh.add(discovery.Descriptor{Address: second.Addr(), Capabilities: capability.NewSet(lampSupport...)}))
	assert.Nil(t, sh.add(discovery.Descriptor{Address: first.Addr()}))

	sh.Handle(ctx, "use 2")
	assert.Contains(t, out.String(), "Using  ("+second.Addr().String()+")")
	sh.Handle(ctx, "toggle")
	assert.Equal(t, []string{"toggle"}, second.Methods())
	assert.Empty(t, first.Methods())

	sh.Handle(ctx, "use "+first.Addr().String())
	sh.Handle(ctx, "off")
	assert.Equal(t, []string{"set_power"}, first.Methods())

	out.Reset()
	sh.Handle(ctx, "use 7")
	assert.Contains(t, out.String(), `Unknown device "7"`)

	out.Reset()
	sh.Handle(ctx, "discover")
	assert.Contains(t, out.String(), "Discovery is not available")
}
