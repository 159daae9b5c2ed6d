// Package chi exposes the status and metrics HTTP listener of a pipeline run.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/db"
)

// Status is a point-in-time snapshot of the running pipeline.
type Status struct {
	RunID      string    `json:"run_id"`
	Phase      string    `json:"phase"`
	Country    string    `json:"country,omitempty"`
	Scraped    int       `json:"scraped"`
	Canonical  int       `json:"canonical"`
	Classified int       `json:"classified"`
	StartedAt  time.Time `json:"started_at"`
}

// StatusFunc returns the current pipeline snapshot.
type StatusFunc func() Status

// Server serves /healthz, /status and /metrics while the pipeline runs.
type Server struct {
	statusFn StatusFunc
	pinger   db.Pinger // nil when storage is disabled
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer creates the status listener. pinger may be nil.
func NewServer(addr string, statusFn StatusFunc, pinger db.Pinger, logger *zap.Logger) *Server {
	s := &Server{
		statusFn: statusFn,
		pinger:   pinger,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background. Errors other than a clean close are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status listener started", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status listener failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statusFn())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
