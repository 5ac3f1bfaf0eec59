package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/device"
	"github.com/yeelight-lan/yeelight-go/pkg/metrics"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Request limits.
const (
	DefaultCommandTimeout = 15 * time.Second
	MaxCommandBytes       = 64 << 10
)

// Config configures a Server.
type Config struct {
	Registry *device.Registry

	// Metrics, when set, serves /metrics and counts requests.
	Metrics *metrics.Collector

	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// Server serves the device registry over HTTP.
type Server struct {
	registry *device.Registry
	metrics  *metrics.Collector
	timeout  time.Duration
	logger   *slog.Logger
}

// NewServer creates a server for config.Registry.
func NewServer(config Config) *Server {
	timeout := config.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		registry: config.Registry,
		metrics:  config.Metrics,
		timeout:  timeout,
		logger:   logger,
	}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware(routePattern))
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", s.handleHealth)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the device API to r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/command", s.handleCommand)
		r.Post("/{id}/refresh", s.handleRefresh)
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Devices   int    `json:"devices"`
	Connected int    `json:"connected"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Result string `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	for _, sess := range s.registry.List() {
		resp.Devices++
		if sess.IsConnected() {
			resp.Connected++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.List()
	states := make([]command.State, 0, len(sessions))
	for _, sess := range sessions {
		states = append(states, command.Snapshot(sess))
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, command.Snapshot(sess))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxCommandBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	cmd, err := command.Parse(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := cmd.Apply(ctx, sess); err != nil {
		s.logger.Warn("command failed", "device", chi.URLParam(r, "id"), "error", err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, command.Snapshot(sess))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := sess.RefreshProperties(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, command.Snapshot(sess))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*device.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:  "unknown device " + id,
			Result: wire.ResultDeviceNotFound.String(),
		})
	}
	return sess, ok
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error:  err.Error(),
		Result: wire.ResultOf(err).String(),
	})
}

// statusFor maps a command error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wire.ErrMethodNotSupported):
		return http.StatusUnprocessableEntity
	case command.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, wire.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, device.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// routePattern labels requests by their chi route, falling back to a
// fixed label for unmatched paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
