package errors

import (
	"context"
	"errors"
	"time"
)

// Backoff is an exponential retry schedule.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
}

// DefaultBackoff covers transient database and Telegram failures: 4 attempts, 200ms..5s.
var DefaultBackoff = Backoff{Attempts: 4, Initial: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2}

// Delay returns the wait before retry n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Initial
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * b.Factor)
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// WithRetry runs fn on DefaultBackoff.
func WithRetry(ctx context.Context, fn func() error) error {
	return Retry(ctx, DefaultBackoff, fn)
}

// Retry calls fn until it succeeds, fails with an error that is not Retryable or runs
// out of attempts. The last error is returned; a done ctx interrupts the wait.
func Retry(ctx context.Context, b Backoff, fn func() error) error {
	if fn == nil {
		return nil
	}
	if b.Attempts < 1 {
		b.Attempts = 1
	}

	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(); err == nil || !IsRetryable(err) || attempt == b.Attempts {
			return err
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// IsRetryable reports whether err is an AppError marked Retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Retryable
}
