package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"infinite-experiment/vitals/internal/models/entities"
)

var (
	// ErrStarting is reported by readiness until MarkReady is called.
	ErrStarting = errors.New("service is starting")
	// ErrStopping is reported by readiness once shutdown has begun.
	ErrStopping = errors.New("service is shutting down")
	// ErrEvaluationTimeout is reported when the evaluator outlives the
	// evaluation timeout.
	ErrEvaluationTimeout = errors.New("health evaluation timed out")
)

// Evaluator supplies the readiness and liveness signals of a service.
type Evaluator interface {
	CheckReadiness(ctx context.Context) (map[string]string, error)
	CheckLiveness(ctx context.Context) error
}

// Phase is the lifecycle position of the owning service.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseReady
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Reporter answers the three health endpoints for one service.
type Reporter struct {
	service   string
	evaluator Evaluator
	phase     atomic.Int32
	timeout   time.Duration
	now       func() time.Time
	onResult  func(probe string, state entities.HealthState)
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithEvaluationTimeout bounds readiness and liveness evaluation.
func WithEvaluationTimeout(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

// WithResultHook is invoked once per answered request.
func WithResultHook(fn func(probe string, state entities.HealthState)) ReporterOption {
	return func(r *Reporter) { r.onResult = fn }
}

// NewReporter creates a reporter in PhaseStarting. A nil evaluator is
// replaced by an empty Checker.
func NewReporter(service string, evaluator Evaluator, opts ...ReporterOption) *Reporter {
	if evaluator == nil {
		evaluator = NewChecker()
	}
	r := &Reporter{
		service:   service,
		evaluator: evaluator,
		timeout:   DefaultCheckTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Service returns the identifier reported in every response.
func (r *Reporter) Service() string { return r.service }

// Phase returns the current lifecycle phase.
func (r *Reporter) Phase() Phase { return Phase(r.phase.Load()) }

// MarkReady is called once startup has finished. It has no effect after
// MarkStopping.
func (r *Reporter) MarkReady() {
	r.phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseReady))
}

// MarkStopping makes readiness fail so traffic drains before shutdown.
func (r *Reporter) MarkStopping() {
	r.phase.Store(int32(PhaseStopping))
}

// Health is the pure liveness signal served at /health.
func (r *Reporter) Health(ctx context.Context) (status entities.ServiceHealthStatus, code int) {
	defer r.guard("health", &status, &code, http.StatusInternalServerError)

	status = r.build(entities.StateUp, nil, nil)
	return r.record("health", status), http.StatusOK
}

// Readiness reports READY only after startup and when every dependency
// check passes.
func (r *Reporter) Readiness(ctx context.Context) (status entities.ServiceHealthStatus, code int) {
	defer r.guard("ready", &status, &code, http.StatusServiceUnavailable)

	switch r.Phase() {
	case PhaseStarting:
		return r.record("ready", r.build(entities.StateDown, ErrStarting, nil)), http.StatusServiceUnavailable
	case PhaseStopping:
		return r.record("ready", r.build(entities.StateDown, ErrStopping, nil)), http.StatusServiceUnavailable
	}

	checks, err := r.evaluate(ctx, r.evaluator.CheckReadiness)
	if err != nil {
		return r.record("ready", r.build(entities.StateDown, err, checks)), http.StatusServiceUnavailable
	}
	return r.record("ready", r.build(entities.StateReady, nil, checks)), http.StatusOK
}

// Liveness reports ALIVE while the liveness evaluator passes.
func (r *Reporter) Liveness(ctx context.Context) (status entities.ServiceHealthStatus, code int) {
	defer r.guard("live", &status, &code, http.StatusServiceUnavailable)

	_, err := r.evaluate(ctx, func(ctx context.Context) (map[string]string, error) {
		return nil, r.evaluator.CheckLiveness(ctx)
	})
	if err != nil {
		return r.record("live", r.build(entities.StateDown, err, nil)), http.StatusServiceUnavailable
	}
	return r.record("live", r.build(entities.StateAlive, nil, nil)), http.StatusOK
}

type evaluation struct {
	checks map[string]string
	err    error
}

// evaluate runs fn in its own goroutine so an evaluator that ignores its
// context still cannot hold the endpoint past the timeout.
func (r *Reporter) evaluate(ctx context.Context, fn func(ctx context.Context) (map[string]string, error)) (map[string]string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- evaluation{err: fmt.Errorf("health evaluation panicked: %v", rec)}
			}
		}()
		checks, err := fn(evalCtx)
		done <- evaluation{checks: checks, err: err}
	}()

	select {
	case res := <-done:
		return res.checks, res.err
	case <-evalCtx.Done():
		return nil, fmt.Errorf("%w: %w", ErrEvaluationTimeout, evalCtx.Err())
	}
}

func (r *Reporter) build(state entities.HealthState, err error, checks map[string]string) entities.ServiceHealthStatus {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	return entities.NewServiceHealthStatus(state, r.service, r.now(), msg, checks)
}

func (r *Reporter) record(probe string, status entities.ServiceHealthStatus) entities.ServiceHealthStatus {
	if r.onResult != nil {
		r.onResult(probe, status.Status)
	}
	return status
}

// guard converts a panic anywhere in evaluation into a DOWN response.
func (r *Reporter) guard(probe string, status *entities.ServiceHealthStatus, code *int, failCode int) {
	rec := recover()
	if rec == nil {
		return
	}
	*status = entities.NewServiceHealthStatus(entities.StateDown, r.service, r.now(), fmt.Sprintf("health evaluation panicked: %v", rec), nil)
	*code = failCode
	if r.onResult != nil {
		r.onResult(probe, entities.StateDown)
	}
}
