package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"infinite-experiment/vitals/internal/checks"
	"infinite-experiment/vitals/internal/common"
	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/models/entities"
	"infinite-experiment/vitals/internal/probe"
	"infinite-experiment/vitals/internal/routes"
	"infinite-experiment/vitals/internal/server"
	"infinite-experiment/vitals/internal/status"
)

const watchServiceName = "vitals-watch"

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe the catalog on an interval and serve the fleet status",
		Long: `Probe the catalog on an interval and serve the latest aggregate at
GET /api/v1/system/status, with probe metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := withGlobal(probeFlags)
			flags["watch.listen"] = "listen"
			flags["watch.interval"] = "interval"
			flags["watch.redis_addr"] = "redis-addr"
			if err := a.load(cmd, flags); err != nil {
				return err
			}
			if a.cfg.Watch.Interval <= 0 {
				return configError("--interval must be positive")
			}

			catalog, err := probe.LoadCatalog(a.cfg.Probe.Catalog)
			if err != nil {
				return configError("%w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, a.cfg, catalog, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		},
	}

	addProbeFlags(cmd)
	cmd.Flags().String("listen", ":9099", "address of the status endpoint")
	cmd.Flags().Duration("interval", status.DefaultInterval, "time between probe runs")
	cmd.Flags().String("redis-addr", "", "share snapshots through Redis at host:port")
	return cmd
}

// runWatch serves the status API and drives the watcher until ctx is done.
func runWatch(ctx context.Context, cfg *config.Config, catalog *probe.Catalog, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	metricsReg := metrics.NewMetricsRegistry(reg)

	harness, err := newHarness(catalog, harnessOptions(cfg.Probe), metricsReg)
	if err != nil {
		return err
	}

	checker := health.NewChecker(health.WithCheckTimeout(cfg.Service.CheckTimeout))
	store, err := newStore(cfg, checker)
	if err != nil {
		return err
	}
	defer store.Close()

	name := cfg.Service.Name
	if name == "" {
		name = watchServiceName
	}
	reporter := health.NewReporter(name, checker,
		health.WithResultHook(func(probe string, state entities.HealthState) {
			metricsReg.HealthEvaluations.WithLabelValues(probe, string(state)).Inc()
		}),
	)

	serverCfg := cfg.Server
	serverCfg.Address = cfg.Watch.Listen
	srv := server.New(serverCfg, routes.RegisterStatusRoutes(serverCfg, store, reporter, metricsReg, gatherer), reporter)
	watcher := status.NewWatcher(harness, store, cfg.Watch.Interval)

	logging.Info("Watching fleet",
		"services", len(catalog.Specs),
		"interval", cfg.Watch.Interval.String(),
		"listen", cfg.Watch.Listen,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		watcher.Start(gctx)
		return nil
	})
	return g.Wait()
}

// newStore picks the snapshot store. A Redis store also becomes a
// readiness dependency of the watcher itself.
func newStore(cfg *config.Config, checker *health.Checker) (status.Store, error) {
	var client *redis.Client
	switch {
	case cfg.Watch.RedisAddr != "":
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Watch.RedisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	case cfg.Watch.Store == "redis":
		if !cfg.Redis.Enabled() {
			return nil, configError("watch.store is redis but REDIS_HOST is not set")
		}
		client = common.NewRedisClient(cfg.Redis)
	case cfg.Watch.Store == "" || cfg.Watch.Store == "memory":
		return status.NewMemoryStore(cfg.Watch.Interval), nil
	default:
		return nil, configError("unknown watch.store %q, want memory or redis", cfg.Watch.Store)
	}

	checker.Register(checks.RedisPing("redis", client))
	return status.NewRedisStore(client, ""), nil
}
