package entities

import "time"

// HealthState is the value of the "status" field of every health response.
type HealthState string

const (
	StateUp    HealthState = "UP"
	StateReady HealthState = "READY"
	StateAlive HealthState = "ALIVE"
	StateDown  HealthState = "DOWN"
)

// TimestampLayout is the ISO-8601 layout used on the wire.
const TimestampLayout = time.RFC3339Nano

// ServiceHealthStatus is built fresh for each request and never mutated.
type ServiceHealthStatus struct {
	Status    HealthState       `json:"status"`
	Service   string            `json:"service,omitempty"`
	Timestamp string            `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewServiceHealthStatus stamps the status with now in UTC. The checks map is
// copied so the caller cannot mutate the result afterwards.
func NewServiceHealthStatus(state HealthState, service string, now time.Time, errMsg string, checks map[string]string) ServiceHealthStatus {
	var copied map[string]string
	if len(checks) > 0 {
		copied = make(map[string]string, len(checks))
		for k, v := range checks {
			copied[k] = v
		}
	}
	return ServiceHealthStatus{
		Status:    state,
		Service:   service,
		Timestamp: now.UTC().Format(TimestampLayout),
		Error:     errMsg,
		Checks:    copied,
	}
}

// ParseTimestamp parses a timestamp produced by any service in the fleet.
// Spring's LocalDateTime omits the zone, those are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
