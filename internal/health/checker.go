// Package health implements the fleet's liveness/readiness contract.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 5 * time.Second

// Check is a single named dependency check. A nil error means healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

type funcCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcCheck) Name() string                    { return f.name }
func (f funcCheck) Check(ctx context.Context) error { return f.fn(ctx) }

// NewCheck wraps fn as a named Check.
func NewCheck(name string, fn func(ctx context.Context) error) Check {
	return funcCheck{name: name, fn: fn}
}

// CheckError lists the checks that failed during one evaluation.
type CheckError struct {
	Failed []string
}

func (e *CheckError) Error() string {
	return "checks failed: " + strings.Join(e.Failed, ", ")
}

// Checker is the default Evaluator: readiness runs every registered
// dependency check, liveness runs the registered liveness checks.
type Checker struct {
	mu        sync.RWMutex
	readiness map[string]Check
	liveness  map[string]Check
	timeout   time.Duration
	observe   func(name string, elapsed time.Duration)
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver is called with the duration of every executed check.
func WithObserver(fn func(name string, elapsed time.Duration)) CheckerOption {
	return func(c *Checker) { c.observe = fn }
}

// NewChecker creates a checker with no registered checks.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		readiness: make(map[string]Check),
		liveness:  make(map[string]Check),
		timeout:   DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a readiness check. A check with the same name is replaced.
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readiness[check.Name()] = check
}

// RegisterLiveness adds a liveness check.
func (c *Checker) RegisterLiveness(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveness[check.Name()] = check
}

// CheckReadiness runs all readiness checks concurrently and returns the
// per-check outcome ("ok" or "error: ...").
func (c *Checker) CheckReadiness(ctx context.Context) (map[string]string, error) {
	return c.run(ctx, c.snapshot(c.readiness))
}

// CheckLiveness runs all liveness checks.
func (c *Checker) CheckLiveness(ctx context.Context) error {
	_, err := c.run(ctx, c.snapshot(c.liveness))
	return err
}

func (c *Checker) snapshot(m map[string]Check) []Check {
	c.mu.RLock()
	defer c.mu.RUnlock()
	checks := make([]Check, 0, len(m))
	for _, check := range m {
		checks = append(checks, check)
	}
	return checks
}

func (c *Checker) run(ctx context.Context, checks []Check) (map[string]string, error) {
	results := make(map[string]string, len(checks))
	if len(checks) == 0 {
		return results, nil
	}

	var (
		mu     sync.Mutex
		failed []string
		g      errgroup.Group
	)
	for _, check := range checks {
		g.Go(func() error {
			err := c.runOne(ctx, check)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[check.Name()] = fmt.Sprintf("error: %v", err)
				failed = append(failed, check.Name())
			} else {
				results[check.Name()] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return results, &CheckError{Failed: failed}
	}
	return results, nil
}

// runOne isolates a check in its own goroutine so a check that ignores its
// context still cannot hold the endpoint past the timeout.
func (c *Checker) runOne(ctx context.Context, check Check) (err error) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if c.observe != nil {
		defer func() { c.observe(check.Name(), time.Since(start)) }()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("check panicked: %v", r)
			}
		}()
		done <- check.Check(checkCtx)
	}()

	select {
	case err = <-done:
		return err
	case <-checkCtx.Done():
		return fmt.Errorf("check timed out: %w", checkCtx.Err())
	}
}
