package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/metrics"
	"infinite-experiment/vitals/internal/probe"
)

var probeFlags = map[string]string{
	"probe.catalog":        "catalog",
	"probe.concurrency":    "concurrency",
	"probe.timeout":        "timeout",
	"probe.skew":           "skew",
	"probe.ready_attempts": "ready-attempts",
	"probe.rps":            "rps",
}

func addProbeFlags(cmd *cobra.Command) {
	cmd.Flags().String("catalog", "catalog.yaml", "catalog of services to probe")
	cmd.Flags().Int("concurrency", probe.DefaultConcurrency, "probes in flight at once")
	cmd.Flags().Duration("timeout", probe.DefaultTimeout, "per-request timeout")
	cmd.Flags().Duration("skew", probe.DefaultSkew, "tolerated health timestamp skew")
	cmd.Flags().Int("ready-attempts", 3, "readiness attempts before failing")
	cmd.Flags().Float64("rps", 0, "max requests per second across the run (0 = unlimited)")
}

func newRunCommand(a *app) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe every catalogued service once and print a report",
		Long: `Probe every catalogued service once and print a report.

Exit status is 0 when no non-skipped probe failed, 1 when at least one
failed and 2 on configuration errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := withGlobal(probeFlags)
			flags["probe.output"] = "output"
			if err := a.load(cmd, flags); err != nil {
				return err
			}

			output := a.cfg.Probe.Output
			if output != "table" && output != "json" {
				return configError("unknown output %q, want table or json", output)
			}

			catalog, err := probe.LoadCatalog(a.cfg.Probe.Catalog)
			if err != nil {
				return configError("%w", err)
			}

			opts := harnessOptions(a.cfg.Probe)
			opts.Only = only
			harness, err := newHarness(catalog, opts, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report := harness.Run(ctx)
			if output == "json" {
				err = report.WriteJSON(a.out)
			} else {
				err = report.WriteTable(a.out)
			}
			if err != nil {
				return err
			}

			if code := report.ExitCode(); code != ExitOK {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	addProbeFlags(cmd)
	cmd.Flags().StringSliceVar(&only, "only", nil, "probe only these services (comma separated)")
	cmd.Flags().StringP("output", "o", "table", "report format: table or json")
	return cmd
}

func harnessOptions(cfg config.ProbeConfig) probe.Options {
	readiness := probe.DefaultRetryPolicy()
	if cfg.ReadyAttempts > 0 {
		readiness.MaxAttempts = cfg.ReadyAttempts
	}
	if cfg.ReadyBackoff > 0 {
		readiness.InitialDelay = cfg.ReadyBackoff
	}
	return probe.Options{
		Concurrency:       cfg.Concurrency,
		Timeout:           cfg.Timeout,
		Skew:              cfg.Skew,
		Readiness:         readiness,
		RequestsPerSecond: cfg.RPS,
	}
}

// newHarness builds a harness over the catalog with its declared tests
// installed. Unknown --only names are configuration errors.
func newHarness(catalog *probe.Catalog, opts probe.Options, m *metrics.MetricsRegistry) (*probe.Harness, error) {
	known := make(map[string]bool, len(catalog.Specs))
	for _, name := range catalog.Names() {
		known[name] = true
	}
	for _, name := range opts.Only {
		if !known[name] {
			return nil, configError("--only: %w: %s", probe.ErrUnknownService, name)
		}
	}

	var options []probe.Option
	if m != nil {
		options = append(options, probe.WithMetrics(m))
	}
	harness := probe.New(catalog.Specs, opts, options...)
	if err := catalog.Register(harness); err != nil {
		return nil, configError("%w", err)
	}
	return harness, nil
}
