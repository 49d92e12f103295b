package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dandantas/pijob/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	runHandler     *RunHandler
	historyHandler *HistoryHandler
	healthHandler  *HealthHandler
}

func NewRouter(runHandler *RunHandler, historyHandler *HistoryHandler, healthHandler *HealthHandler) *Router {
	return &Router{
		runHandler:     runHandler,
		historyHandler: historyHandler,
		healthHandler:  healthHandler,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID, middleware.Logging, middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", rt.healthHandler.Health)
	r.Get("/ready", rt.healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", rt.runHandler.Create)
			r.Get("/", rt.runHandler.List)
			r.Get("/{id}", rt.runHandler.Get)
			r.Delete("/{id}", rt.runHandler.Cancel)
			r.Post("/{id}/cancel", rt.runHandler.Cancel)
		})
		r.Get("/history", rt.historyHandler.List)
		r.Get("/history/{run_id}", rt.historyHandler.Get)
	})

	return r
}
