package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"infinite-experiment/vitals/internal/logging"
	"infinite-experiment/vitals/internal/metrics"
)

// AllServices registers a test for every spec in the catalog.
const AllServices = "*"

// DefaultConcurrency is the worker pool size when Options leaves it unset.
const DefaultConcurrency = 8

var (
	ErrUnknownService = errors.New("unknown service")
	ErrInvalidTest    = errors.New("invalid test registration")
)

// Options tunes a harness run.
type Options struct {
	Concurrency       int
	Timeout           time.Duration
	Skew              time.Duration
	Readiness         RetryPolicy
	RequestsPerSecond float64
	// Only restricts the run to these service names when non-empty.
	Only []string
}

// Option configures optional collaborators of a Harness.
type Option func(*Harness)

// WithHTTPClient replaces the default http.Client. Its Timeout is ignored in
// favour of the per-probe timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *Harness) { h.http = hc }
}

// WithMetrics records every run on the registry.
func WithMetrics(m *metrics.MetricsRegistry) Option {
	return func(h *Harness) { h.metrics = m }
}

// WithLogger replaces the named global logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Harness) { h.log = l }
}

// WithStateHook is called on every probe state transition. It may be called
// from several goroutines at once.
func WithStateHook(fn func(ProbeResult)) Option {
	return func(h *Harness) { h.onState = fn }
}

type registeredTest struct {
	name string
	fn   TestFunc // nil for placeholders
}

type job struct {
	spec  ProbeSpec
	check string
	fn    TestFunc
}

// Harness runs the health contract checks and registered endpoint tests
// for a fixed catalog of ProbeSpecs.
type Harness struct {
	specs   []ProbeSpec
	byName  map[string]ProbeSpec
	opts    Options
	http    *http.Client
	metrics *metrics.MetricsRegistry
	log     *zap.SugaredLogger
	onState func(ProbeResult)
	now     func() time.Time

	mu    sync.RWMutex
	tests map[string][]registeredTest
}

// New creates a harness over specs. Specs are copied; later changes to the
// slice do not affect the harness.
func New(specs []ProbeSpec, opts Options, options ...Option) *Harness {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Readiness.MaxAttempts <= 0 {
		opts.Readiness = DefaultRetryPolicy()
	}

	h := &Harness{
		specs:  append([]ProbeSpec(nil), specs...),
		byName: make(map[string]ProbeSpec, len(specs)),
		opts:   opts,
		http:   &http.Client{},
		now:    time.Now,
		tests:  make(map[string][]registeredTest),
	}
	for _, s := range h.specs {
		h.byName[s.ServiceName] = s
	}
	for _, o := range options {
		o(h)
	}
	if h.log == nil {
		h.log = logging.Named("probe")
	}
	return h
}

// Specs returns a copy of the catalog.
func (h *Harness) Specs() []ProbeSpec {
	return append([]ProbeSpec(nil), h.specs...)
}

// RegisterEndpointTests adds a concrete test for service (or AllServices).
// A test with the same name replaces the earlier registration, which is how
// a placeholder is turned into a running test.
func (h *Harness) RegisterEndpointTests(service, name string, fn TestFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: test %q has no function", ErrInvalidTest, name)
	}
	return h.register(service, registeredTest{name: name, fn: fn})
}

// RegisterPlaceholder records a test that is reported as Skipped until a
// concrete test with the same name is registered.
func (h *Harness) RegisterPlaceholder(service, name string) error {
	return h.register(service, registeredTest{name: name})
}

func (h *Harness) register(service string, t registeredTest) error {
	if t.name == "" {
		return fmt.Errorf("%w: empty test name", ErrInvalidTest)
	}
	switch t.name {
	case CheckHealth, CheckReady, CheckLive:
		return fmt.Errorf("%w: %q is a built-in check", ErrInvalidTest, t.name)
	}
	if service != AllServices {
		if _, ok := h.byName[service]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownService, service)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tests[service] = upsert(h.tests[service], t)
	return nil
}

func upsert(list []registeredTest, t registeredTest) []registeredTest {
	for i := range list {
		if list[i].name == t.name {
			list[i] = t
			return list
		}
	}
	return append(list, t)
}

// testsFor resolves the tests of one service: the default placeholders,
// overridden by AllServices registrations, overridden by service ones.
func (h *Harness) testsFor(service string) []registeredTest {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tests := []registeredTest{{name: PlaceholderEndpoints}, {name: PlaceholderErrorHandling}}
	for _, t := range h.tests[AllServices] {
		tests = upsert(tests, t)
	}
	for _, t := range h.tests[service] {
		tests = upsert(tests, t)
	}
	return tests
}

func (h *Harness) selected() []ProbeSpec {
	if len(h.opts.Only) == 0 {
		return h.specs
	}
	want := make(map[string]bool, len(h.opts.Only))
	for _, name := range h.opts.Only {
		want[name] = true
	}
	var out []ProbeSpec
	for _, s := range h.specs {
		if want[s.ServiceName] {
			out = append(out, s)
		}
	}
	return out
}

func (h *Harness) plan() []job {
	var jobs []job
	for _, spec := range h.selected() {
		jobs = append(jobs, job{spec: spec, check: CheckHealth, fn: h.builtin(CheckHealth)})
		if spec.CheckReady {
			jobs = append(jobs, job{spec: spec, check: CheckReady, fn: h.builtin(CheckReady)})
		}
		if spec.CheckLive {
			jobs = append(jobs, job{spec: spec, check: CheckLive, fn: h.builtin(CheckLive)})
		}
		for _, t := range h.testsFor(spec.ServiceName) {
			jobs = append(jobs, job{spec: spec, check: t.name, fn: t.fn})
		}
	}
	return jobs
}

func (h *Harness) builtin(check string) TestFunc {
	c := contracts[check]
	return func(ctx context.Context, client *Client) error {
		resp, err := client.Get(ctx, c.path)
		if err != nil {
			return err
		}
		return verifyHealthResponse(resp, c, client.Spec().ServiceName, h.opts.Skew)
	}
}

// RunHealthCheck probes spec's /health endpoint once.
func (h *Harness) RunHealthCheck(ctx context.Context, spec ProbeSpec) ProbeResult {
	return h.execute(ctx, job{spec: spec, check: CheckHealth, fn: h.builtin(CheckHealth)})
}

// Run executes every planned probe on a bounded worker pool. A failing probe
// never stops the others; cancelling ctx aborts in-flight requests and marks
// probes that never started as cancelled.
func (h *Harness) Run(ctx context.Context) *Report {
	started := h.now()
	jobs := h.plan()
	results := make([]ProbeResult, len(jobs))
	for i, j := range jobs {
		results[i] = h.pending(j)
	}

	var limiter *rate.Limiter
	if h.opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.RequestsPerSecond), 1)
	}

	var g errgroup.Group
	g.SetLimit(h.opts.Concurrency)

	for i, j := range jobs {
		if j.fn == nil {
			results[i] = h.finish(results[i], &Error{Kind: KindSkippedPlaceholder, Msg: "no assertion registered"})
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i] = h.finish(results[i], cancelled(err))
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				results[i] = h.finish(results[i], cancelled(err))
				continue
			}
		}
		g.Go(func() error {
			results[i] = h.execute(ctx, j)
			return nil
		})
	}
	_ = g.Wait()

	report := NewReport(started, h.now(), results)
	h.observe(report)
	h.log.Infow("Probe run finished",
		"run_id", report.RunID,
		"passed", report.Totals.Passed,
		"failed", report.Totals.Failed,
		"skipped", report.Totals.Skipped,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report
}

func cancelled(cause error) error {
	return &Error{Kind: KindTimeout, Err: fmt.Errorf("%w: %w", ErrRunCancelled, cause)}
}

func (h *Harness) pending(j job) ProbeResult {
	return ProbeResult{
		Service: j.spec.ServiceName,
		Group:   j.spec.Group,
		Owner:   j.spec.Owner,
		Check:   j.check,
		State:   StatePending,
	}
}

func (h *Harness) execute(ctx context.Context, j job) ProbeResult {
	res := h.pending(j)
	res.State = StateRunning
	res.StartedAt = h.now()
	h.emit(res)

	client := newClient(j.spec, h.http, h.opts.Timeout, h.now)
	attempts, err := h.invoke(ctx, j, client)

	res.Duration = h.now().Sub(res.StartedAt)
	res.Endpoint, res.HTTPStatus = client.last()
	res.Attempts = attempts
	return h.finish(res, err)
}

func (h *Harness) invoke(ctx context.Context, j job, client *Client) (int, error) {
	if j.check == CheckReady {
		return retry(ctx, h.opts.Readiness, func() error { return call(ctx, j.fn, client) })
	}
	return 1, call(ctx, j.fn, client)
}

// call runs one attempt, turning a panic into an AssertionFailure.
func call(ctx context.Context, fn TestFunc, client *Client) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindAssertion, Err: fmt.Errorf("%w: %v", errTestPanicked, r)}
		}
	}()
	return fn(ctx, client)
}

// finish moves a result into its terminal state.
func (h *Harness) finish(res ProbeResult, err error) ProbeResult {
	switch kind := KindOf(err); kind {
	case KindNone:
		res.State = StatePassed
	case KindSkippedPlaceholder:
		res.State = StateSkipped
		res.ErrorKind = kind
		res.Message = err.Error()
	default:
		res.State = StateFailed
		res.ErrorKind = kind
		res.Message = err.Error()
		h.log.Warnw("Probe failed",
			"service", res.Service,
			"owner", res.Owner,
			"check", res.Check,
			"endpoint", res.Endpoint,
			"error_kind", string(kind),
			"message", res.Message,
		)
	}
	h.emit(res)
	return res
}

func (h *Harness) emit(res ProbeResult) {
	if h.onState != nil {
		h.onState(res)
	}
}

func (h *Harness) observe(report *Report) {
	if h.metrics == nil {
		return
	}
	for _, r := range report.Results {
		h.metrics.ProbeResultsTotal.WithLabelValues(r.Service, r.Check, string(r.State), string(r.ErrorKind)).Inc()
		if r.State != StateSkipped {
			h.metrics.ProbeDuration.WithLabelValues(r.Service, r.Check).Observe(r.Duration.Seconds())
		}
	}
	for _, svc := range report.Services() {
		up := 0.0
		if svc.Up {
			up = 1
		}
		h.metrics.ServiceUp.WithLabelValues(svc.Service, svc.Group).Set(up)
	}
	h.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
}
