package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named remote resource does not exist.
var ErrNotFound = errors.New("remote resource not found")

// TransientError marks a failure that is safe to retry: throttling,
// quota pressure, or a flaky network hop.
//
// The underlying error can be accessed via errors.Unwrap.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that must not be retried.
//
// The underlying error can be accessed via errors.Unwrap.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal remote error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Fatal wraps err as non-retryable. Returns nil for a nil err.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsTransient reports whether err may be retried. Context cancellation is
// never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}
