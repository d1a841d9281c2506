package dispatch

import (
	"errors"
	"fmt"
)

// RetryableError marks an error from a Handler as transient. The mark is
// reported to the ErrorHandler (DefaultErrorHandler logs it as
// "retryable"); it does not change routing: the Dispatcher sends every
// Handler error, marked or not, through the Retry Policy Adapter.
// Use for: network timeouts, database connection loss, rate limits.
// Don't use for: validation errors, permanent business-logic failures.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	return RetryableError{Err: err}
}

// IsRetryable reports whether err was marked with Transient.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// PanicError records a recovered panic from a Handler. Jobs that panic
// always go to MarkFailed, never through the retry policy: a panic
// indicates a programming error, not a transient condition.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err wraps a recovered panic.
func IsPanic(err error) bool {
	var panicErr PanicError
	return errors.As(err, &panicErr)
}
