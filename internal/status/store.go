package status

import (
	"context"
	"errors"
	"time"
)

// ErrNoSnapshot is returned when no fresh snapshot exists.
var ErrNoSnapshot = errors.New("no status snapshot")

// Store holds the latest fleet snapshot. Implementations expire snapshots
// after the ttl passed to Save so stale results are never served.
type Store interface {
	// Save replaces the current snapshot.
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error

	// Latest returns the current snapshot or ErrNoSnapshot.
	Latest(ctx context.Context) (*Snapshot, error)

	// Close releases any underlying connections.
	Close() error
}
