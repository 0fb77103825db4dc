package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy runs an operation with bounded retries and exponential
// back-off. When the failing dependency suggests its own retry delay
// (e.g. a rate-limit response), that delay overrides the computed
// back-off for the next attempt.
type RetryPolicy struct {
	// Attempts is the maximum number of calls, including the first.
	// Default: 3.
	Attempts int

	// BaseDelay is the back-off for the first retry; each subsequent
	// retry doubles it. Default: 2s.
	BaseDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool

	// SuggestedDelay extracts a server-suggested retry delay from an
	// error. When it returns true, the delay replaces the computed
	// back-off. Nil disables the override.
	SuggestedDelay func(error) (time.Duration, bool)
}

// Do runs fn until it succeeds, the attempt budget is spent, a
// non-retryable error occurs, or ctx is cancelled. The last error is
// returned wrapped with the attempt count.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		if p.SuggestedDelay != nil {
			if d, ok := p.SuggestedDelay(lastErr); ok && d > 0 {
				delay = d
			}
		}
		slog.Warn("operation failed, backing off before retry",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
