// Package api provides the HTTP surface: download submission and one-shot
// file retrieval.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediadl/media-dl/internal/config"
	"github.com/mediadl/media-dl/internal/download"
	"github.com/mediadl/media-dl/internal/ratelimit"
	"github.com/mediadl/media-dl/internal/service"
	"github.com/mediadl/media-dl/internal/storage"
)

// Invoker runs the external fetch tool. Implemented by *download.Invoker;
// stubbed in tests.
type Invoker interface {
	Invoke(ctx context.Context, url, serviceName string) (download.Result, error)
}

// Server wires the service registry, the invoker and the file guard into the
// HTTP API.
type Server struct {
	cfg      config.AppConfig
	registry *service.Registry
	invoker  Invoker
	guard    *storage.Guard
	limiter  *ratelimit.Limiter
}

// New constructs the API server.
func New(cfg config.AppConfig, registry *service.Registry, invoker Invoker, guard *storage.Guard, limiter *ratelimit.Limiter) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		invoker:  invoker,
		guard:    guard,
		limiter:  limiter,
	}
}

// Handler returns the routed handler with the full middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(s.cfg.AllowedOrigins))
	r.Use(SecurityHeaders)
	r.Use(Metrics())
	r.Use(RequestLogger)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.With(httprate.Limit(
		s.cfg.RateLimit,
		s.cfg.RateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(s.cfg.RateWindow)),
	)).Post("/api/download", s.handleDownload)

	r.Get("/downloads/{filename}", s.handleFetch)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
