package transcriber

import (
	"errors"
	"fmt"
	"time"
)

// Error is a classified transcription failure. The gateway inspects the
// predicate fields to decide whether a retry is worthwhile and how long to
// wait before the next attempt.
type Error struct {
	// Message is a human-readable description of the failure.
	Message string

	// Timeout marks deadline and connection failures.
	Timeout bool

	// RateLimited marks 429 responses and explicit quota exhaustion.
	RateLimited bool

	// ServerError marks 5xx responses.
	ServerError bool

	// RetryAfter is the server-suggested delay before the next attempt.
	// Zero when the server suggested nothing; when set it overrides the
	// caller's computed backoff.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcriber: %s: %v", e.Message, e.Err)
	}
	return "transcriber: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: timeouts, rate
// limits, and server errors are worth another attempt.
func (e *Error) Retryable() bool {
	return e.Timeout || e.RateLimited || e.ServerError
}

// AsError extracts a [*Error] from err, or nil if err carries none.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return nil
}
