// Package metrics exports session traffic as Prometheus metrics.
//
// A Collector owns the metric vectors. ForDevice returns a device.Observer
// bound to one device's label.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

const namespace = "yeelight"

// Collector holds the metric vectors.
type Collector struct {
	commands      *prometheus.CounterVec
	roundTrip     *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	connected     *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a Collector and registers it with reg. A nil reg uses a new
// private registry.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands by device, method, channel and result.",
		}, []string{"device", "method", "channel", "result"}),
		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_round_trip_seconds",
			Help:      "Time from command write to response on the primary channel.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"device", "method"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Property notifications received.",
		}, []string{"device"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Received lines that could not be decoded.",
		}, []string{"device"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 when the device has an active channel.",
		}, []string{"device"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions by target state.",
		}, []string{"device", "state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(c.commands, c.roundTrip, c.notifications, c.dropped,
		c.connected, c.transitions, c.httpRequests)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ForDevice returns an observer labelled with id.
func (c *Collector) ForDevice(id string) device.Observer {
	return &deviceObserver{c: c, id: id}
}

// Middleware counts HTTP requests. route names the request for the label;
// it should return the route pattern, not the raw path.
func (c *Collector) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			c.httpRequests.WithLabelValues(route(r), r.Method, strconv.Itoa(rw.status)).Inc()
		})
	}
}

type deviceObserver struct {
	c  *Collector
	id string
}

func (o *deviceObserver) CommandCompleted(method string, channel log.Channel, result wire.Result, rtt time.Duration) {
	o.c.commands.WithLabelValues(o.id, method, channel.String(), result.String()).Inc()
	if rtt > 0 {
		o.c.roundTrip.WithLabelValues(o.id, method).Observe(rtt.Seconds())
	}
}

func (o *deviceObserver) NotificationReceived([]string) {
	o.c.notifications.WithLabelValues(o.id).Inc()
}

func (o *deviceObserver) FrameDropped(error) {
	o.c.dropped.WithLabelValues(o.id).Inc()
}

func (o *deviceObserver) StateChanged(_, newState connection.State) {
	o.c.transitions.WithLabelValues(o.id, newState.String()).Inc()
	up := 0.0
	if newState == connection.StateConnected || newState == connection.StateDirectActive {
		up = 1
	}
	o.c.connected.WithLabelValues(o.id).Set(up)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
