package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infinite-experiment/vitals/internal/api"
	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/middleware"
)

// newBaseRouter carries the middleware every vitals listener shares and
// exposes gatherer at /metrics.
func newBaseRouter(cfg config.ServerConfig, metricsReg *metrics.MetricsRegistry, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.MetricsMiddleware(metricsReg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute)
		r.Use(limiter.Middleware)
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// RegisterRoutes builds the router of a service exposing the health
// contract.
func RegisterRoutes(cfg config.ServerConfig, reporter *health.Reporter, metricsReg *metrics.MetricsRegistry, gatherer prometheus.Gatherer) http.Handler {
	r := newBaseRouter(cfg, metricsReg, gatherer)
	registerHealthRoutes(r, reporter)

	logging.Info("Router initialized with metrics and logging middleware", "service", reporter.Service())
	return r
}

func registerHealthRoutes(r chi.Router, reporter *health.Reporter) {
	r.Get("/health", api.HealthHandler(reporter))
	r.Get("/health/ready", api.ReadinessHandler(reporter))
	r.Get("/health/live", api.LivenessHandler(reporter))
}
