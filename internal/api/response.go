package api

import (
	"encoding/json"
	"net/http"

	"infinite-experiment/vitals/internal/logging"
)

// writeJSON encodes body with the given status code. Health bodies are
// never cached by intermediaries.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("JSON encode failed", "error", err)
	}
}
