package exchange

import (
	"errors"
	"fmt"
)

// TransientError wraps a failure the caller should retry: network errors,
// timeouts, rate-limit responses, 5xx. The Exchange Port's retry wrapper
// only retries this error kind.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("exchange: transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransient wraps err as a TransientError for operation op.
func NewTransient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// PermanentError wraps a failure that must not be retried: auth failures,
// unknown symbol, malformed requests, insufficient funds.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("exchange: permanent error during %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanent wraps err as a PermanentError for operation op.
func NewPermanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// CircuitOpenError is returned when a call is rejected fast because the
// per-venue circuit breaker is open.
type CircuitOpenError struct {
	Venue string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("exchange: circuit open for venue %s", e.Venue)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// ErrUnsupported is returned by adapters that do not implement an optional
// capability (e.g. GetRemotePosition on the paper adapter).
var ErrUnsupported = errors.New("exchange: unsupported operation")
