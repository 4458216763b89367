// Package status keeps the latest probe report of the whole fleet and
// refreshes it on an interval.
package status

import (
	"time"

	"infinite-experiment/vitals/internal/probe"
)

// Fleet-level states.
const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
	StatusUnknown  = "UNKNOWN"

	GroupUp   = "UP"
	GroupDown = "DOWN"

	ungrouped = "ungrouped"
)

// Snapshot is the aggregate served by the system status endpoint.
type Snapshot struct {
	RunID     string                 `json:"runId"`
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checkedAt"`
	Totals    probe.Totals           `json:"totals"`
	Groups    map[string]string      `json:"groups"`
	Services  []probe.ServiceSummary `json:"services"`
}

// NewSnapshot summarises a report. A group is DOWN when any of its services
// failed a non-skipped probe.
func NewSnapshot(r *probe.Report) Snapshot {
	snap := Snapshot{
		RunID:     r.RunID,
		Status:    StatusUp,
		CheckedAt: r.FinishedAt.UTC(),
		Totals:    r.Totals,
		Groups:    make(map[string]string),
		Services:  r.Services(),
	}
	for _, svc := range snap.Services {
		group := svc.Group
		if group == "" {
			group = ungrouped
		}
		if _, ok := snap.Groups[group]; !ok {
			snap.Groups[group] = GroupUp
		}
		if !svc.Up {
			snap.Groups[group] = GroupDown
			snap.Status = StatusDegraded
		}
	}
	return snap
}
