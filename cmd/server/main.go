package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"infinite-experiment/vitals/internal/checks"
	"infinite-experiment/vitals/internal/common"
	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/db"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/models/entities"
	"infinite-experiment/vitals/internal/routes"
	"infinite-experiment/vitals/internal/server"
)

// @title Vitals Health Reporter
// @version 1.0
// @description Liveness, readiness and health endpoints for a fleet service.
// @BasePath /
func main() {
	cfg, err := config.Load(viper.New(), os.Getenv("VITALS_CONFIG"))
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	if err := logging.Init(cfg.App.Environment, cfg.Logger.Level); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	if cfg.Service.Name == "" {
		logging.Fatal("SERVICE_NAME is required")
	}

	logging.Info("Vitals reporter starting up",
		"service", cfg.Service.Name,
		"environment", cfg.App.Environment,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsReg := metrics.NewMetricsRegistry(prometheus.DefaultRegisterer)

	checker, closeDeps := buildChecker(ctx, cfg, metricsReg)
	defer closeDeps()

	reporter := health.NewReporter(cfg.Service.Name, checker,
		health.WithEvaluationTimeout(cfg.Service.CheckTimeout),
		health.WithResultHook(func(probe string, state entities.HealthState) {
			metricsReg.HealthEvaluations.WithLabelValues(probe, string(state)).Inc()
		}),
	)

	router := routes.RegisterRoutes(cfg.Server, reporter, metricsReg, prometheus.DefaultGatherer)
	logging.Info("Prometheus metrics endpoint registered at /metrics")

	if err := server.New(cfg.Server, router, reporter).Run(ctx); err != nil {
		logging.Error("Server stopped with error", "error", err.Error())
		os.Exit(1)
	}
	logging.Info("Server stopped")
}

// buildChecker registers the process checks every service gets plus the
// database and Redis dependencies that are configured.
func buildChecker(ctx context.Context, cfg *config.Config, metricsReg *metrics.MetricsRegistry) (*health.Checker, func()) {
	checker := health.NewChecker(
		health.WithCheckTimeout(cfg.Service.CheckTimeout),
		health.WithObserver(func(name string, elapsed time.Duration) {
			metricsReg.CheckDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		}),
	)

	checker.Register(checks.HeapUsage("memory_heap", cfg.Service.HeapLimitMB*1024*1024))
	checker.Register(checks.RSSUsage("memory_rss", cfg.Service.RSSLimitMB*1024*1024))
	checker.Register(checks.DiskUsage("disk", cfg.Service.DiskPath, cfg.Service.DiskThreshold))

	heartbeat := health.NewHeartbeat(cfg.Service.HeartbeatInterval, 0)
	go heartbeat.Start(ctx)
	checker.RegisterLiveness(heartbeat)

	var closers []func() error

	// Readiness reports "connecting" until the database answers; the server
	// starts serving regardless.
	database, err := db.ConnectInBackground(ctx, cfg.Database)
	switch {
	case errors.Is(err, db.ErrNotConfigured):
		logging.Info("No database configured, skipping database check")
	case err != nil:
		logging.Fatal("Invalid database configuration", "error", err.Error())
	default:
		checker.Register(database.Check("database"))
		closers = append(closers, database.Close)
	}

	if cfg.Redis.Enabled() {
		client := common.NewRedisClient(cfg.Redis)
		checker.Register(checks.RedisPing("redis", client))
		closers = append(closers, client.Close)
	}

	return checker, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logging.Warn("Failed to close dependency", "error", err.Error())
			}
		}
	}
}
