package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
)

// ErrConnecting is reported by the readiness check until the first
// connection has been established.
var ErrConnecting = errors.New("connecting")

// Background connects to the database without blocking startup, so the
// service can answer /health and report not-ready while the database comes up.
type Background struct {
	mu     sync.RWMutex
	handle *Handle
	err    error
	closed bool
	ready  chan struct{}

	retryDelay time.Duration
}

// ConnectInBackground validates cfg and keeps connecting until it succeeds or
// ctx ends. Configuration errors, including ErrNotConfigured, are returned
// immediately.
func ConnectInBackground(ctx context.Context, cfg config.DatabaseConfig) (*Background, error) {
	open, err := opener(cfg)
	if err != nil {
		return nil, err
	}
	b := newBackground(connectDelay)
	go b.run(ctx, func(ctx context.Context) (*Handle, error) {
		return connectWithRetry(ctx, connectAttempts, connectDelay, open)
	})
	return b, nil
}

func newBackground(retryDelay time.Duration) *Background {
	return &Background{ready: make(chan struct{}), retryDelay: retryDelay}
}

func (b *Background) run(ctx context.Context, connect func(ctx context.Context) (*Handle, error)) {
	for {
		h, err := connect(ctx)
		if err == nil {
			b.set(h)
			return
		}

		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		logging.Warn("Database not reachable yet", "error", err.Error())

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.retryDelay):
		}
	}
}

func (b *Background) set(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = h.Close()
		return
	}
	b.handle = h
	b.err = nil
	close(b.ready)
}

// Ready is closed once a connection exists.
func (b *Background) Ready() <-chan struct{} { return b.ready }

// Check fails with ErrConnecting until connected, then pings the pool.
func (b *Background) Check(name string) health.Check {
	return health.NewCheck(name, func(ctx context.Context) error {
		b.mu.RLock()
		h, err := b.handle, b.err
		b.mu.RUnlock()

		switch {
		case h != nil:
			return h.Check(name).Check(ctx)
		case err != nil:
			return fmt.Errorf("%w: %w", ErrConnecting, err)
		default:
			return ErrConnecting
		}
	})
}

// Close releases the connection, or discards one that arrives later.
func (b *Background) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.handle == nil {
		return nil
	}
	return b.handle.Close()
}
