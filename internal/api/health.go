package api

import (
	"net/http"

	"infinite-experiment/vitals/internal/health"
)

// HealthHandler handles GET /health
//
// @Summary Health check
// @Description Reports that the process is up. No dependency is consulted.
// @Tags Health
// @Success 200 {object} entities.ServiceHealthStatus
// @Failure 500 {object} entities.ServiceHealthStatus
// @Router /health [get]
func HealthHandler(reporter *health.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := reporter.Health(r.Context())
		writeJSON(w, code, status)
	}
}

// ReadinessHandler handles GET /health/ready
//
// @Summary Readiness check
// @Description Reports READY once startup finished and every dependency check passes.
// @Tags Health
// @Success 200 {object} entities.ServiceHealthStatus
// @Failure 503 {object} entities.ServiceHealthStatus
// @Router /health/ready [get]
func ReadinessHandler(reporter *health.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := reporter.Readiness(r.Context())
		writeJSON(w, code, status)
	}
}

// LivenessHandler handles GET /health/live
//
// @Summary Liveness check
// @Tags Health
// @Success 200 {object} entities.ServiceHealthStatus
// @Failure 503 {object} entities.ServiceHealthStatus
// @Router /health/live [get]
func LivenessHandler(reporter *health.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := reporter.Liveness(r.Context())
		writeJSON(w, code, status)
	}
}
