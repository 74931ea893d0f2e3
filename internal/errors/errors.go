// Package errors provides domain-specific error types for asyncnet.
//
// Every failure surfaced by the transport carries one of the condition
// sentinels below as its Kind, so callers can branch with errors.Is
// without parsing messages, while the underlying OS error stays
// reachable through Unwrap.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrInvalidArgument marks configuration errors: a port out of
	// range or a bind the OS refused.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedOperation marks lifecycle misuse (reopening a
	// closed listener, a failed socket close) and write failures.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	ErrClosed         = errors.New("closed")
	ErrExecutorClosed = errors.New("executor is closed")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "dial", "read", "write", "close"
	Addr      string // network address involved
	Kind      error  // condition sentinel, may be nil
	Err       error  // underlying error, may be nil
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	if e.Kind != nil {
		s += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		s += fmt.Sprintf(": %v", e.Err)
	}
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

// Unwrap exposes both the condition and the cause to errors.Is/As.
func (e *NetworkError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// Unwrap makes every ConfigError an ErrInvalidArgument.
func (e *ConfigError) Unwrap() error { return ErrInvalidArgument }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// InvalidArgument creates a NetworkError of kind ErrInvalidArgument.
func InvalidArgument(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Kind: ErrInvalidArgument, Err: err}
}

// Unsupported creates a NetworkError of kind ErrUnsupportedOperation.
func Unsupported(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Kind: ErrUnsupportedOperation, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsClosedConn reports whether err is the result of using a socket
// that was already released, which the transport treats as a normal
// end of stream rather than a failure.
func IsClosedConn(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout() || opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
