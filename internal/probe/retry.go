package probe

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy bounds readiness retries. Health and liveness never retry: a
// transient failure there is a real signal.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy allows a starting service a few seconds to come up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// retry runs fn until it succeeds, fails with a non-retryable kind, or the
// attempts run out. It returns the number of attempts made.
func retry(ctx context.Context, policy RetryPolicy, fn func() error) (int, error) {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == policy.MaxAttempts {
			return attempt, lastErr
		}

		select {
		case <-ctx.Done():
			return attempt, cancelled(ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}
	return policy.MaxAttempts, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, ErrRunCancelled) || errors.Is(err, errTestPanicked) {
		return false
	}
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindAssertion:
		return true
	default:
		return false
	}
}
