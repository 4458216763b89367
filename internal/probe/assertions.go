package probe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"infinite-experiment/vitals/internal/models/entities"
)

// DefaultSkew is the tolerated distance between a health timestamp and the
// probe's receive time.
const DefaultSkew = 5 * time.Second

// contract describes what a healthy response on one endpoint looks like.
type contract struct {
	path           string
	state          entities.HealthState
	requireService bool
}

var contracts = map[string]contract{
	CheckHealth: {path: "/health", state: entities.StateUp, requireService: true},
	CheckReady:  {path: "/health/ready", state: entities.StateReady},
	CheckLive:   {path: "/health/live", state: entities.StateAlive},
}

// verifyHealthResponse checks a health endpoint response against the
// contract for that endpoint.
func verifyHealthResponse(resp *Response, c contract, service string, skew time.Duration) error {
	if !resp.Success() {
		return Assertionf("%s returned %d, want 2xx", resp.URL, resp.StatusCode)
	}

	var body entities.ServiceHealthStatus
	if err := resp.DecodeJSON(&body); err != nil {
		return err
	}

	if !strings.EqualFold(string(body.Status), string(c.state)) {
		return Assertionf("status is %q, want %q", body.Status, c.state)
	}

	switch {
	case body.Service == "" && c.requireService:
		return Assertionf("response has no service identifier")
	case body.Service != "" && body.Service != service:
		return Assertionf("service is %q, want %q", body.Service, service)
	}

	if body.Timestamp == "" {
		return Assertionf("response has no timestamp")
	}
	ts, err := entities.ParseTimestamp(body.Timestamp)
	if err != nil {
		return Assertionf("timestamp %q is not ISO-8601: %v", body.Timestamp, err)
	}
	if skew <= 0 {
		skew = DefaultSkew
	}
	if drift := resp.ReceivedAt.Sub(ts); drift > skew || drift < -skew {
		return Assertionf("timestamp %s is %s away from receive time (tolerance %s)", body.Timestamp, drift.Round(time.Millisecond), skew)
	}
	return nil
}

// TestFunc is a concrete endpoint or error-handling assertion. Returning nil
// passes; returning an error fails with the error's kind.
type TestFunc func(ctx context.Context, c *Client) error

// Expect builds a TestFunc that sends one request and asserts the status
// code, e.g. malformed input → 400, missing auth → 401, unknown id → 404.
func Expect(method, path string, body []byte, want ...int) TestFunc {
	return func(ctx context.Context, c *Client) error {
		resp, err := c.Do(ctx, method, path, body, nil)
		if err != nil {
			return err
		}
		return resp.ExpectStatus(want...)
	}
}

// ExpectJSON is Expect plus a check that the body is valid JSON.
func ExpectJSON(method, path string, body []byte, want ...int) TestFunc {
	return func(ctx context.Context, c *Client) error {
		resp, err := c.Do(ctx, method, path, body, http.Header{"Accept": []string{"application/json"}})
		if err != nil {
			return err
		}
		if err := resp.ExpectStatus(want...); err != nil {
			return err
		}
		var v any
		return resp.DecodeJSON(&v)
	}
}
