package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/api/handler"
	apimw "github.com/ricirt/feedrelay/internal/api/middleware"
	"github.com/ricirt/feedrelay/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.PipelineService,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	ph := handler.NewPipelineHandler(svc, logger)
	hh := handler.NewHealthHandler()

	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/monitor/start", ph.Start)
		r.Post("/monitor/stop", ph.Stop)
		r.Post("/monitor/run", ph.RunOnce)

		r.Get("/stats", ph.Stats)
		r.Get("/logs", ph.Logs)

		r.Get("/queue", ph.Queue)
		r.Delete("/queue", ph.ClearQueue)

		r.Get("/targets", ph.Targets)
		r.Delete("/targets/{name}/failed", ph.ClearFailed)
	})

	return r
}
