package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reqctx "infinite-experiment/vitals/internal/context"
	"infinite-experiment/vitals/internal/metrics"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRateLimiter_LimitsPerIP(t *testing.T) {
	handler := NewRateLimiter(1, 2, time.Minute).Middleware(http.HandlerFunc(ok))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:5002"))

	// Another client has its own bucket.
	assert.Equal(t, http.StatusOK, call("10.0.0.2:5000"))
}

func TestRateLimiter_LoopbackIsNeverLimited(t *testing.T) {
	handler := NewRateLimiter(1, 1, time.Minute).Middleware(http.HandlerFunc(ok))

	for _, addr := range []string{"127.0.0.1:4000", "[::1]:4000"} {
		for range 5 {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = addr
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code, addr)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqctx.GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "probe-42")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "probe-42", seen)
	assert.Equal(t, "probe-42", rr.Header().Get(RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.NewMetricsRegistry(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/123", nil))

	var pb dto.Metric
	require.NoError(t, m.HTTPRequestsTotal.WithLabelValues("/items/{id}", http.MethodGet, "404").Write(&pb))
	assert.Equal(t, 1.0, pb.GetCounter().GetValue())
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "/api/v1/objectives/{id}", NormalizeEndpoint("/api/v1/objectives/42"))
	assert.Equal(t, "/api/v1/objectives/{id}/key-results", NormalizeEndpoint("/api/v1/objectives/"+uuid.NewString()+"/key-results"))
	assert.Equal(t, "/health/ready", NormalizeEndpoint("/health/ready"))
}
