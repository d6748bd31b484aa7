// Package httpapi exposes health, readiness, metrics, and read-only query
// endpoints over the analysis store.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hollyoak/citysignal/internal/domain"
)

// ResultReader is the store surface the query endpoints need.
type ResultReader interface {
	ReadResults(ctx context.Context, seriesA, seriesB string) ([]domain.CorrelationResult, error)
	ReadRuns(ctx context.Context, limit int) ([]domain.RunReport, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the HTTP API.
type Server struct {
	httpServer *http.Server
	reader     ResultReader
	ready      ReadinessChecker
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, metrics, and v1 query routes.
func NewServer(addr string, reader ResultReader, ready ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		reader: reader,
		ready:  ready,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/correlations", s.handleCorrelations)
		r.Get("/runs", s.handleRuns)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleCorrelations returns stored correlation results, best first.
// Optional query params series_a and series_b filter by series name.
func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	results, err := s.reader.ReadResults(r.Context(),
		r.URL.Query().Get("series_a"), r.URL.Query().Get("series_b"))
	if err != nil {
		s.logger.Error("read results failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if results == nil {
		results = []domain.CorrelationResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleRuns returns recent ingest run reports, most recent first. The
// optional limit query param caps the count.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.reader.ReadRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("read runs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if runs == nil {
		runs = []domain.RunReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
