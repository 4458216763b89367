package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"infinite-experiment/vitals/internal/api"
	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/status"
)

// RegisterAPIRoutes registers the v1 system routes.
func RegisterAPIRoutes(r chi.Router, store status.Store) {
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/system/status", api.SystemStatusHandler(store))
	})
}

// RegisterStatusRoutes builds the watcher's router. The watcher answers the
// health contract itself so it can be probed like any other service.
func RegisterStatusRoutes(cfg config.ServerConfig, store status.Store, reporter *health.Reporter, metricsReg *metrics.MetricsRegistry, gatherer prometheus.Gatherer) http.Handler {
	r := newBaseRouter(cfg, metricsReg, gatherer)

	registerHealthRoutes(r, reporter)
	RegisterAPIRoutes(r, store)

	return r
}
