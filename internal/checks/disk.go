package checks

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"infinite-experiment/vitals/internal/health"
)

// DefaultDiskThreshold fails the check when more than 90% of the volume is used.
const DefaultDiskThreshold = 0.9

// DiskUsage fails when the filesystem holding path is fuller than threshold
// (a fraction between 0 and 1).
func DiskUsage(name, path string, threshold float64) health.Check {
	return diskUsage(name, path, threshold, statfs)
}

func diskUsage(name, path string, threshold float64, stat func(string) (total, free uint64, err error)) health.Check {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDiskThreshold
	}
	if path == "" {
		path = "/"
	}
	return health.NewCheck(name, func(ctx context.Context) error {
		total, free, err := stat(path)
		if err != nil {
			return fmt.Errorf("statfs %s: %w", path, err)
		}
		if total == 0 {
			return fmt.Errorf("statfs %s: volume reports zero size", path)
		}
		used := float64(total-free) / float64(total)
		if used > threshold {
			return fmt.Errorf("%s is %.1f%% full (threshold %.0f%%)", path, used*100, threshold*100)
		}
		return nil
	})
}

func statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
