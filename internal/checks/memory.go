package checks

import (
	"context"
	"fmt"
	"runtime"

	"infinite-experiment/vitals/internal/health"
)

// DefaultHeapLimit matches the 300 MiB heap ceiling used across the fleet.
const DefaultHeapLimit uint64 = 300 * 1024 * 1024

// HeapUsage fails once the live heap exceeds limit bytes.
func HeapUsage(name string, limit uint64) health.Check {
	return heapUsage(name, limit, readHeapAlloc)
}

func heapUsage(name string, limit uint64, read func() uint64) health.Check {
	if limit == 0 {
		limit = DefaultHeapLimit
	}
	return health.NewCheck(name, func(ctx context.Context) error {
		used := read()
		if used > limit {
			return fmt.Errorf("heap %d MiB exceeds limit %d MiB", used>>20, limit>>20)
		}
		return nil
	})
}

func readHeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
