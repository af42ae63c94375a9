package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up download routes, health check, and Prometheus metrics endpoint.
func NewRouter(engine EngineI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	handler := NewDownloadHandler(engine, logger)

	r.Route("/tracks", func(r chi.Router) {
		r.Post("/", handler.EnqueueTrack)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", handler.ListTasks)
		r.Get("/{trackID}", handler.GetTask)
		r.Delete("/{trackID}", handler.RemoveTask)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", handler.EnqueueBatch)
		r.Get("/{batchID}", handler.GetBatch)
		r.Delete("/{batchID}", handler.CancelBatch)
	})

	r.Put("/settings/concurrency", handler.SetConcurrency)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
