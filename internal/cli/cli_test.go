package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/models/entities"
	"infinite-experiment/vitals/internal/probe"
	"infinite-experiment/vitals/internal/status"
)

func healthyService(t *testing.T, service string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entities.NewServiceHealthStatus(entities.StateUp, service, time.Now(), "", nil))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func unreachable(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr
}

// writeCatalog writes a catalog into a fresh working directory.
func writeCatalog(t *testing.T, services map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	doc := "defaults:\n  ready: false\nservices:\n"
	for name, base := range services {
		doc += fmt.Sprintf("  - service: %s\n    basePath: %s\n", name, base)
	}
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func execute(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), append(args, "--log-level", "error"), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_AllHealthyExitsZero(t *testing.T) {
	path := writeCatalog(t, map[string]string{"objective-service": healthyService(t, "objective-service")})

	code, out, _ := execute("run", "--catalog", path, "--output", "json")

	assert.Equal(t, ExitOK, code)
	var report probe.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, probe.Totals{Passed: 1, Skipped: 2}, report.Totals)
}

func TestRun_FailureExitsOne(t *testing.T) {
	path := writeCatalog(t, map[string]string{
		"objective-service":  healthyService(t, "objective-service"),
		"key-result-tracker": unreachable(t),
	})

	code, out, _ := execute("run", "--catalog", path, "--timeout", "2s")

	assert.Equal(t, ExitFailures, code)
	assert.Contains(t, out, "ConnectionError")
	assert.Contains(t, out, "key-result-tracker")
}

func TestRun_OnlySelectsServices(t *testing.T) {
	path := writeCatalog(t, map[string]string{
		"objective-service":  healthyService(t, "objective-service"),
		"key-result-tracker": unreachable(t),
	})

	code, _, _ := execute("run", "--catalog", path, "--only", "objective-service")
	assert.Equal(t, ExitOK, code)

	code, _, errOut := execute("run", "--catalog", path, "--only", "nope")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "unknown service")
}

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	path := writeCatalog(t, map[string]string{"objective-service": healthyService(t, "objective-service")})

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing catalog", args: []string{"run", "--catalog", filepath.Join(t.TempDir(), "missing.yaml")}},
		{name: "bad output", args: []string{"run", "--catalog", path, "--output", "xml"}},
		{name: "unknown flag", args: []string{"run", "--bogus"}},
		{name: "unknown command", args: []string{"explode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := execute(tt.args...)
			assert.Equal(t, ExitConfigError, code)
			assert.NotEmpty(t, errOut)
		})
	}
}

func TestList(t *testing.T) {
	path := writeCatalog(t, map[string]string{"objective-service": "http://localhost:3000"})

	code, out, _ := execute("list", "--catalog", path)

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "objective-service")
	assert.Contains(t, out, "http://localhost:3000")
}

func TestVersion(t *testing.T) {
	code, out, _ := execute("version")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "healthprobe "+Version)
}

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		watch   config.WatchConfig
		redis   config.RedisConfig
		want    any
		wantErr bool
	}{
		{name: "memory", watch: config.WatchConfig{Store: "memory", Interval: time.Second}, want: &status.MemoryStore{}},
		{name: "redis addr", watch: config.WatchConfig{RedisAddr: mr.Addr()}, want: &status.RedisStore{}},
		{name: "redis from config", watch: config.WatchConfig{Store: "redis"}, redis: config.RedisConfig{Host: mr.Host(), Port: mr.Port()}, want: &status.RedisStore{}},
		{name: "redis without host", watch: config.WatchConfig{Store: "redis"}, wantErr: true},
		{name: "unknown", watch: config.WatchConfig{Store: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := newStore(&config.Config{Watch: tt.watch, Redis: tt.redis}, health.NewChecker())
			if tt.wantErr {
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, ExitConfigError, exitErr.Code)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestRunWatch_StoresSnapshotAndStops(t *testing.T) {
	mr := miniredis.RunT(t)
	base := healthyService(t, "objective-service")
	catalog := &probe.Catalog{Specs: []probe.ProbeSpec{{ServiceName: "objective-service", BasePath: base}}}
	cfg := &config.Config{
		Server: config.ServerConfig{ShutdownTimeout: time.Second},
		Watch:  config.WatchConfig{Listen: "127.0.0.1:0", Interval: time.Hour, RedisAddr: mr.Addr()},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	reg := prometheus.NewRegistry()
	go func() { done <- runWatch(ctx, cfg, catalog, reg, reg) }()

	store := status.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	assert.Eventually(t, func() bool {
		snap, err := store.Latest(context.Background())
		return err == nil && snap.Status == status.StatusUp
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
