package endpoint

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/health"
	"github.com/c360/streampilot/metric"
)

// Registrable is anything that can mount itself on the management mux.
type Registrable interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// Server is the management HTTP server. Endpoints are mounted under
// /manage, metrics at /metrics.
type Server struct {
	cfg    config.ManagementConfig
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
}

// Prefix is the root of the management endpoints.
const Prefix = "/manage"

// NewServer creates the management server.
func NewServer(cfg config.ManagementConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// Mux returns the server's mux, mainly for tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Expose mounts an endpoint when its id is on the exposure include-list.
// Returns true when the endpoint was mounted.
func (s *Server) Expose(id string, endpoint Registrable) bool {
	if !s.cfg.Exposes(id) {
		s.logger.Debug("Endpoint not exposed", "id", id)
		return false
	}
	endpoint.RegisterHTTPHandlers(Prefix, s.mux)
	return true
}

// ExposeHealth mounts the aggregated health endpoint.
func (s *Server) ExposeHealth(monitor *health.Monitor) bool {
	if !s.cfg.Exposes(HealthID) {
		return false
	}
	s.mux.HandleFunc(Prefix+"/"+HealthID, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := monitor.AggregateHealth("streampilot")
		code := http.StatusOK
		if status.Status == health.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		writeJSONBody(w, status)
	})
	return true
}

// ExposeMetrics mounts the Prometheus handler at /metrics.
func (s *Server) ExposeMetrics(registry *metric.Registry) bool {
	if !s.cfg.Exposes(MetricsID) {
		return false
	}
	s.mux.Handle("/metrics", registry.Handler())
	return true
}

// Start begins serving in the background.
func (s *Server) Start() error {
	if s.server != nil {
		return errors.ErrAlreadyStarted
	}

	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("Management server listening", "addr", s.cfg.Listen)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Management server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	return err
}

// writeJSONBody encodes the body after the caller has written its own
// status code.
func writeJSONBody(w http.ResponseWriter, body any) {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}
