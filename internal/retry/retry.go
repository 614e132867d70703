// Package retry provides bounded retry with exponential backoff and bounded polling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Policy describes a bounded exponential retry.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	// Multiplier defaults to 2.
	Multiplier float64
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration
	// Retryable defaults to RetryUnlessCanceled.
	Retryable Classifier
}

// NewExponential builds a doubling policy with retries extra attempts.
func NewExponential(retries int, base time.Duration) Policy {
	if retries < 0 {
		retries = 0
	}
	return Policy{
		MaxAttempts: retries + 1,
		BaseDelay:   base,
		Multiplier:  2,
	}
}

// WithClassifier returns a copy of p using c.
func (p Policy) WithClassifier(c Classifier) Policy {
	p.Retryable = c
	return p
}

// RetryUnlessCanceled retries everything except cancellation. Per-request
// timeouts wrap context.DeadlineExceeded and stay retryable; Do stops on its
// own when the caller's context has ended.
func RetryUnlessCanceled(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, the classifier rejects its error, attempts run
// out, or ctx ends. The last error from fn is returned wrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = RetryUnlessCanceled
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry aborted: %w (last error: %w)", ctxErr, lastErr)
		}
		if !retryable(lastErr) || attempt == attempts-1 {
			break
		}
		if err := Sleep(ctx, p.Backoff(attempt)); err != nil {
			return fmt.Errorf("retry wait: %w (last error: %w)", err, lastErr)
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
