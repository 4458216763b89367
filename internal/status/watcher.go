package status

import (
	"context"
	"time"

	"go.uber.org/zap"

	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/probe"
)

// DefaultInterval is how often the fleet is probed.
const DefaultInterval = 30 * time.Second

// Runner executes one probe run.
type Runner interface {
	Run(ctx context.Context) *probe.Report
}

// Watcher runs the harness on an interval and stores each result.
type Watcher struct {
	runner   Runner
	store    Store
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewWatcher creates a watcher. Snapshots live for two intervals, so one
// missed run is tolerated before the status turns UNKNOWN.
func NewWatcher(runner Runner, store Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		runner:   runner,
		store:    store,
		interval: interval,
		log:      logging.Named("watcher"),
	}
}

// TTL is how long a stored snapshot stays fresh.
func (w *Watcher) TTL() time.Duration {
	return 2 * w.interval
}

// Start probes the fleet immediately and then on every tick until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.log.Infow("Starting status watcher", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("Status watcher shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce probes the fleet and saves the snapshot. A run interrupted by
// shutdown is not stored.
func (w *Watcher) RunOnce(ctx context.Context) *Snapshot {
	report := w.runner.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}

	snap := NewSnapshot(report)
	if err := w.store.Save(ctx, snap, w.TTL()); err != nil {
		w.log.Errorw("Failed to store status snapshot", "run_id", snap.RunID, "error", err)
		return &snap
	}

	if snap.Status != StatusUp {
		var down []string
		for _, svc := range snap.Services {
			if !svc.Up {
				down = append(down, svc.Service)
			}
		}
		w.log.Warnw("Fleet degraded", "run_id", snap.RunID, "down", down)
	}
	return &snap
}
