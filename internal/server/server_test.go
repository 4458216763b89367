package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/routes"
)

func TestServer_LifecycleDrivesReadiness(t *testing.T) {
	reg := prometheus.NewRegistry()
	reporter := health.NewReporter("objective-service", nil)
	cfg := config.ServerConfig{ShutdownTimeout: time.Second}
	srv := New(cfg, routes.RegisterRoutes(cfg, reporter, metrics.NewMetricsRegistry(reg), reg), reporter)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String() + "/health/ready"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, health.PhaseStopping, reporter.Phase())
}

func TestServer_RunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	reporter := health.NewReporter("objective-service", nil)
	srv := New(config.ServerConfig{Address: ln.Addr().String()}, http.NotFoundHandler(), reporter)

	err = srv.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, health.PhaseStarting, reporter.Phase())
}
