// Package probe is a data-driven harness that verifies the fleet health
// contract across a catalog of services and runs per-service endpoint tests.
package probe

import (
	"encoding/json"
	"time"
)

// ProbeSpec identifies one monitored service. It is read-only once the
// catalog has been loaded.
type ProbeSpec struct {
	ServiceName string        `json:"service" yaml:"service"`
	BasePath    string        `json:"basePath" yaml:"basePath"`
	SourceFile  string        `json:"sourceFile,omitempty" yaml:"sourceFile,omitempty"`
	Group       string        `json:"group,omitempty" yaml:"group,omitempty"`
	Owner       string        `json:"owner,omitempty" yaml:"owner,omitempty"`
	CheckReady  bool          `json:"ready" yaml:"ready"`
	CheckLive   bool          `json:"live" yaml:"live"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// State is the lifecycle of one probe.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StatePassed  State = "PASSED"
	StateFailed  State = "FAILED"
	StateSkipped State = "SKIPPED"
)

// Terminal reports whether the probe has finished.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateSkipped
}

// Built-in check names.
const (
	CheckHealth = "health"
	CheckReady  = "ready"
	CheckLive   = "live"

	PlaceholderEndpoints     = "API Endpoints"
	PlaceholderErrorHandling = "Error Handling"
)

// ProbeResult is the outcome of one check against one service.
type ProbeResult struct {
	Service    string        `json:"service"`
	Group      string        `json:"group,omitempty"`
	Owner      string        `json:"owner,omitempty"`
	Check      string        `json:"check"`
	Endpoint   string        `json:"endpoint,omitempty"`
	State      State         `json:"state"`
	ErrorKind  ErrorKind     `json:"errorKind,omitempty"`
	Message    string        `json:"message,omitempty"`
	HTTPStatus int           `json:"httpStatus,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Duration   time.Duration `json:"-"`
	StartedAt  time.Time     `json:"startedAt"`
}

// MarshalJSON renders Duration in milliseconds.
func (r ProbeResult) MarshalJSON() ([]byte, error) {
	type alias ProbeResult
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"durationMs"`
	}{alias: alias(r), DurationMS: r.Duration.Milliseconds()})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *ProbeResult) UnmarshalJSON(data []byte) error {
	type alias ProbeResult
	var aux struct {
		alias
		DurationMS int64 `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ProbeResult(aux.alias)
	r.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}
