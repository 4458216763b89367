package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Heartbeat is a liveness check that fails when the runtime stops
// scheduling its ticker goroutine for longer than maxLag.
type Heartbeat struct {
	interval time.Duration
	maxLag   time.Duration
	last     atomic.Int64
	now      func() time.Time
}

// NewHeartbeat creates a heartbeat; call Start before registering it.
func NewHeartbeat(interval, maxLag time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = time.Second
	}
	if maxLag < interval {
		maxLag = 5 * interval
	}
	h := &Heartbeat{interval: interval, maxLag: maxLag, now: time.Now}
	h.beat()
	return h
}

// Start beats until ctx is cancelled.
func (h *Heartbeat) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	h.last.Store(h.now().UnixNano())
}

// Name implements Check.
func (h *Heartbeat) Name() string { return "heartbeat" }

// Check implements Check.
func (h *Heartbeat) Check(_ context.Context) error {
	lag := h.now().Sub(time.Unix(0, h.last.Load()))
	if lag > h.maxLag {
		return fmt.Errorf("heartbeat stalled for %s (max %s)", lag.Round(time.Millisecond), h.maxLag)
	}
	return nil
}
