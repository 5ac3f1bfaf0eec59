package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeelight-lan/yeelight-go/internal/testharness/mock"
	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/httpapi"
	"github.com/yeelight-lan/yeelight-go/pkg/metrics"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

const lightID = "0x0000000000000abc"

type env struct {
	handler http.Handler
	device  *mock.Device
	session *device.Session
}

func newEnv(t *testing.T, collector *metrics.Collector, setup ...func(*mock.Device)) *env {
	t.Helper()
	caps := capability.NewSet(capability.GetProp, capability.SetPower, capability.SetBright,
		capability.SetCtAbx, capability.SetRGB)
	d := mock.NewDevice(lightID, caps)
	for _, fn := range setup {
		fn(d)
	}
	require.NoError(t, d.Start(context.Background(), "127.0.0.1:0"))
	t.Cleanup(func() { _ = d.Stop() })

	s := device.NewSession(device.Config{
		Address:      d.Addr(),
		ID:           lightID,
		Capabilities: caps,
		Timeout:      2 * time.Second,
		RetryDelay:   10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = s.Close() })

	registry := device.NewRegistry()
	require.NoError(t, registry.Add(s))

	srv := httpapi.NewServer(httpapi.Config{Registry: registry, Metrics: collector})
	return &env{handler: srv.Router(), device: d, session: s}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.session.Connect(context.Background()))

	rec := e.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status    string `json:"status"`
		Devices   int    `json:"devices"`
		Connected int    `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Devices)
	assert.Equal(t, 1, health.Connected)
}

func TestListAndGet(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/devices/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]command.State](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, lightID, list[0].ID)
	assert.False(t, list[0].Connected)

	rec = e.do(t, http.MethodGet, "/api/devices/"+lightID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lightID, decode[command.State](t, rec).ID)

	rec = e.do(t, http.MethodGet, "/api/devices/0xdead", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), wire.ResultDeviceNotFound.String())
}

func TestCommand(t *testing.T) {
	e := newEnv(t, nil)

	t.Run("Applies", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/devices/"+lightID+"/command", `{"state":"on","brightness":55}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		state := e.device.State()
		assert.True(t, state.Power)
		assert.Equal(t, 55, state.Bright)
		assert.Equal(t, []string{"set_power", "set_bright"}, e.device.Methods())
	})

	errorCases := []struct {
		name   string
		body   string
		status int
		result wire.Result
	}{
		{"BadDocument", `{"state":"dim"}`, http.StatusBadRequest, wire.ResultInvalidParams},
		{"Empty", `{}`, http.StatusBadRequest, wire.ResultInvalidParams},
		{"OutOfRange", `{"brightness":0}`, http.StatusBadRequest, wire.ResultInvalidParams},
		{"Unsupported", `{"hs":{"hue":120,"sat":50}}`, http.StatusUnprocessableEntity, wire.ResultMethodNotSupported},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			before := len(e.device.Received())
			rec := e.do(t, http.MethodPost, "/api/devices/"+lightID+"/command", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error  string `json:"error"`
				Result string `json:"result"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.result.String(), body.Result)
			assert.NotEmpty(t, body.Error)
			assert.Len(t, e.device.Received(), before)
		})
	}

	t.Run("TooLarge", func(t *testing.T) {
		body := `{"name":"` + strings.Repeat("x", httpapi.MaxCommandBytes) + `"}`
		rec := e.do(t, http.MethodPost, "/api/devices/"+lightID+"/command", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/devices/0xdead/command", `{"state":"on"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeviceFailureIsBadGateway(t *testing.T) {
	e := newEnv(t, nil, func(d *mock.Device) {
		d.Handlers.OnCommand = func(cmd wire.Command) ([]byte, bool) {
			return []byte(`{"id":` + jsonNumber(cmd.ID) + `,"error":{"code":-5000,"message":"general error"}}` + wire.Terminator), true
		}
	})

	rec := e.do(t, http.MethodPost, "/api/devices/"+lightID+"/command", `{"state":"on"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), wire.ResultError.String())
}

func TestRefresh(t *testing.T) {
	e := newEnv(t, nil)
	e.device.Update(func(p *props.Properties) { p.Bright = 12 })

	rec := e.do(t, http.MethodPost, "/api/devices/"+lightID+"/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[command.State](t, rec).Brightness)
	assert.Equal(t, []string{"get_prop"}, e.device.Methods())
}

func TestMetricsRoute(t *testing.T) {
	e := newEnv(t, metrics.New(nil))

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/devices/"+lightID, "").Code)
	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/nope", "").Code)

	rec := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/devices/{id}"`)
	assert.Contains(t, rec.Body.String(), `route="unmatched"`)
}

func jsonNumber(id uint16) string {
	b, _ := json.Marshal(id)
	return string(b)
}
