package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/models/entities"
	"infinite-experiment/vitals/internal/probe"
	"infinite-experiment/vitals/internal/status"
)

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) entities.ServiceHealthStatus {
	t.Helper()
	var body entities.ServiceHealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthHandler(t *testing.T) {
	reporter := health.NewReporter("objective-service", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	HealthHandler(reporter)(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	body := decodeStatus(t, rr)
	assert.Equal(t, entities.StateUp, body.Status)
	assert.Equal(t, "objective-service", body.Service)
	ts, err := entities.ParseTimestamp(body.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestReadinessHandler(t *testing.T) {
	checker := health.NewChecker()
	failing := true
	checker.Register(health.NewCheck("database", func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	}))
	reporter := health.NewReporter("key-result-tracker", checker)
	handler := ReadinessHandler(reporter)

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, entities.StateDown, decodeStatus(t, rr).Status)

	reporter.MarkReady()
	rr = httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decodeStatus(t, rr)
	assert.Contains(t, body.Checks["database"], "connection refused")

	failing = false
	rr = httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	body = decodeStatus(t, rr)
	assert.Equal(t, entities.StateReady, body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestLivenessHandler(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterLiveness(health.NewCheck("heartbeat", func(context.Context) error {
		return errors.New("stalled")
	}))
	reporter := health.NewReporter("task-dispatcher", checker)

	rr := httptest.NewRecorder()
	LivenessHandler(reporter)(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, entities.StateDown, decodeStatus(t, rr).Status)
}

func TestSystemStatusHandler(t *testing.T) {
	store := status.NewMemoryStore(time.Minute)
	handler := SystemStatusHandler(store)

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `"UNKNOWN"`, mustField(t, rr, "status"))

	report := probe.NewReport(time.Now(), time.Now(), []probe.ProbeResult{
		{Service: "objective-service", Group: "goal-management", Check: probe.CheckHealth, State: probe.StatePassed},
	})
	require.NoError(t, store.Save(context.Background(), status.NewSnapshot(report), time.Minute))

	rr = httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, report.RunID, snap.RunID)
	assert.Equal(t, status.StatusUp, snap.Status)
	assert.Equal(t, map[string]string{"goal-management": status.GroupUp}, snap.Groups)
}

func mustField(t *testing.T, rr *httptest.ResponseRecorder, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return string(m[key])
}
