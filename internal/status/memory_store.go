package status

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const snapshotKey = "vitals:status:latest"

// MemoryStore keeps the snapshot in process.
type MemoryStore struct {
	cache *cache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store. cleanupInterval controls how
// often expired snapshots are evicted.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot, ttl time.Duration) error {
	s.cache.Set(snapshotKey, snap, ttl)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*Snapshot, error) {
	v, found := s.cache.Get(snapshotKey)
	if !found {
		return nil, ErrNoSnapshot
	}
	snap := v.(Snapshot)
	return &snap, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
