package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-http-utils/headers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chain-watchdog/internal/health"
)

// SnapshotSource exposes the current runtime health.
type SnapshotSource interface {
	Snapshot() health.Snapshot
}

// Server serves prometheus metrics and health JSON.
type Server struct {
	source SnapshotSource
	server *http.Server
	logger zerolog.Logger
}

// NewServer wires the status routes.
func NewServer(addr string, source SnapshotSource, logger zerolog.Logger) *Server {
	s := &Server{
		source: source,
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("status server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	code := http.StatusOK
	if snap.Halted {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(snap.Status)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set(headers.ContentType, "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
