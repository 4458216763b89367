package checks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sys/unix"

	"infinite-experiment/vitals/internal/health"
)

// DefaultRSSLimit is the 500 MiB resident-set ceiling used across the fleet.
const DefaultRSSLimit uint64 = 500 * 1024 * 1024

// RSSUsage fails once the resident set of the process exceeds limit bytes.
// Unlike HeapUsage it also sees memory held by cgo and the runtime itself.
func RSSUsage(name string, limit uint64) health.Check {
	return rssUsage(name, limit, readRSS)
}

func rssUsage(name string, limit uint64, read func() (uint64, error)) health.Check {
	if limit == 0 {
		limit = DefaultRSSLimit
	}
	return health.NewCheck(name, func(ctx context.Context) error {
		used, err := read()
		if err != nil {
			return fmt.Errorf("read rss: %w", err)
		}
		if used > limit {
			return fmt.Errorf("rss %d MiB exceeds limit %d MiB", used>>20, limit>>20)
		}
		return nil
	})
}

// readRSS reads the current resident set from /proc on Linux. Elsewhere it
// falls back to the peak resident set from getrusage.
func readRSS() (uint64, error) {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile("/proc/self/statm")
		if err != nil {
			return 0, err
		}
		return parseStatm(data, uint64(os.Getpagesize()))
	}

	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	// Maxrss is bytes on darwin.
	return uint64(ru.Maxrss), nil
}

// parseStatm returns the resident pages field of /proc/<pid>/statm in bytes.
func parseStatm(data []byte, pageSize uint64) (uint64, error) {
	fields := bytes.Fields(data)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed statm %q", data)
	}
	pages, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed statm %q: %w", data, err)
	}
	return pages * pageSize, nil
}
