package device_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeelight-lan/yeelight-go/pkg/device"
)

func TestRegistry(t *testing.T) {
	r := device.NewRegistry()
	b := device.NewSession(device.Config{ID: "b"})
	a := device.NewSession(device.Config{ID: "a"})
	anon := device.NewSession(device.Config{Address: netip.MustParseAddrPort("10.0.0.9:55443")})

	require.NoError(t, r.Add(b))
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(anon))
	assert.ErrorIs(t, r.Add(device.NewSession(device.Config{ID: "a"})), device.ErrDuplicateID)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Get("10.0.0.9:55443")
	assert.True(t, ok)

	assert.Equal(t, []*device.Session{anon, a, b}, r.List())

	removed, ok := r.Remove("b")
	require.True(t, ok)
	assert.Same(t, b, removed)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Close())
	assert.Zero(t, r.Len())
}

func TestObservers(t *testing.T) {
	one, two := &countingObserver{}, &countingObserver{}
	obs := device.Observers(one, nil, two)

	obs.FrameDropped(nil)
	obs.NotificationReceived([]string{"power"})

	assert.EqualValues(t, 1, one.dropped.Load())
	assert.EqualValues(t, 1, two.notified.Load())
	assert.Equal(t, device.NoopObserver{}, device.Observers(nil))
}
