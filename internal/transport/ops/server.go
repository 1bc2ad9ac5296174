// Package ops exposes the operational HTTP surface: health and metrics.
// Retrieval and ingestion stay on the CLI and library APIs; this server
// carries no document data.
package ops

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	logpkg "github.com/docsift/docsift/internal/logger"
	healthuc "github.com/docsift/docsift/internal/usecase/health"
)

// Server serves /healthz and /metrics.
type Server struct {
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an ops server.
func NewServer(health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{health: health, logger: logger}
}

// Router builds the chi router for the ops endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(s.withLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

// withLogger binds a request-scoped logger so handlers carry the request id.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(logpkg.ContextWithLogger(r.Context(), l)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
		logpkg.FromContext(r.Context()).Warn("Health check degraded", zap.Any("checks", report.Checks))
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
