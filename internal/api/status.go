package api

import (
	"errors"
	"net/http"
	"time"

	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/status"
)

type unknownStatus struct {
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
	Error     string    `json:"error"`
}

// SystemStatusHandler handles GET /api/v1/system/status
//
// @Summary Fleet status
// @Description Latest aggregate of the health probes across every catalogued service.
// @Tags System
// @Success 200 {object} status.Snapshot
// @Failure 503 {object} unknownStatus
// @Router /api/v1/system/status [get]
func SystemStatusHandler(store status.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Latest(r.Context())
		if err != nil {
			if !errors.Is(err, status.ErrNoSnapshot) {
				logging.Error("Failed to read status snapshot", "error", err)
			}
			writeJSON(w, http.StatusServiceUnavailable, unknownStatus{
				Status:    status.StatusUnknown,
				CheckedAt: time.Now().UTC(),
				Error:     err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
