package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/quickstage/internal/api/handler"
	mw "github.com/iconidentify/quickstage/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured. metrics may
// be nil, in which case /metrics is not served.
func NewRouter(
	batchHandler *handler.BatchHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	metrics http.Handler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(mw.CORS)

	// Probes (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)
		r.Get("/events", eventHandler.List)

		r.Post("/batches", batchHandler.Submit)
		r.Get("/batches", batchHandler.List)
		r.Get("/batches/{batchID}", batchHandler.Get)
		r.Put("/batches/{batchID}", batchHandler.Refresh)
		r.Get("/batches/{batchID}/items/{index}", batchHandler.ServeItem)
	})

	return r
}
