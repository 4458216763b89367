package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorKind names why a probe failed.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindConnection         ErrorKind = "ConnectionError"
	KindTimeout            ErrorKind = "TimeoutError"
	KindProtocol           ErrorKind = "ProtocolError"
	KindAssertion          ErrorKind = "AssertionFailure"
	KindSkippedPlaceholder ErrorKind = "SkippedPlaceholder"
)

// ErrRunCancelled marks probes abandoned because the run's context ended.
var ErrRunCancelled = errors.New("run cancelled")

// errTestPanicked marks a test function that panicked. It is never retried.
var errTestPanicked = errors.New("test panicked")

// Error is a classified probe failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Assertionf builds an AssertionFailure. Endpoint tests return it when a
// response does not match what they expect.
func Assertionf(format string, args ...any) error {
	return &Error{Kind: KindAssertion, Msg: fmt.Sprintf(format, args...)}
}

func protocolError(msg string, err error) error {
	return &Error{Kind: KindProtocol, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind of err. Unclassified errors returned by
// endpoint tests count as assertion failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindAssertion
}

// classifyTransport maps an error from http.Client.Do or from reading the
// body to an ErrorKind.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Err: fmt.Errorf("%w: %w", ErrRunCancelled, err)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: "no response within timeout", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Msg: "no response within timeout", Err: err}
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return &Error{Kind: KindConnection, Msg: "target unreachable", Err: err}
	}

	return &Error{Kind: KindProtocol, Msg: "malformed response", Err: err}
}
