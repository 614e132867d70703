package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when a Poll runs out of attempts.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// Poll checks a completion predicate at a fixed interval a bounded number of times.
type Poll struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// Until waits InitialDelay, then calls check up to MaxAttempts times, sleeping
// Interval between calls. check returns done=true to stop; a non-nil error
// aborts polling immediately.
func (p Poll) Until(ctx context.Context, check func(ctx context.Context, attempt int) (bool, error)) error {
	if err := Sleep(ctx, p.InitialDelay); err != nil {
		return fmt.Errorf("poll initial wait: %w", err)
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := Sleep(ctx, p.Interval); err != nil {
				return fmt.Errorf("poll wait: %w", err)
			}
		}
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts)
}
