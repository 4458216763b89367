package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for vitals
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Reporter Metrics
	HealthEvaluations *prometheus.CounterVec
	CheckDuration     *prometheus.HistogramVec

	// Probe Metrics
	ProbeResultsTotal *prometheus.CounterVec
	ProbeDuration     *prometheus.HistogramVec
	ServiceUp         *prometheus.GaugeVec
	RunDuration       prometheus.Histogram
}

// NewMetricsRegistry registers every metric on reg. Passing nil uses the
// default Prometheus registerer.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsRegistry{
		// HTTP Metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitals_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitals_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		// Reporter Metrics
		HealthEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_health_evaluations_total",
				Help: "Health endpoint evaluations by probe kind and resulting status",
			},
			[]string{"probe", "status"},
		),
		CheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitals_dependency_check_duration_seconds",
				Help:    "Dependency check execution time in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"check"},
		),

		// Probe Metrics
		ProbeResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitals_probe_results_total",
				Help: "Probe outcomes by service, check, state and error kind",
			},
			[]string{"service", "check", "state", "error_kind"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitals_probe_duration_seconds",
				Help:    "Probe round-trip time in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service", "check"},
		),
		ServiceUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitals_service_up",
				Help: "1 if every non-skipped probe of the service passed in the last run",
			},
			[]string{"service", "group"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vitals_probe_run_duration_seconds",
				Help:    "Wall time of a complete harness run in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
	}
}
