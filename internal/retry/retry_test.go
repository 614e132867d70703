package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestPolicyDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := NewExponential(2, time.Millisecond).Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPolicyDo_ExhaustsAndReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := NewExponential(2, time.Millisecond).Do(context.Background(), func(context.Context, int) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, calls)
}

func TestPolicyDo_ClassifierStopsEarly(t *testing.T) {
	t.Parallel()

	terminal := errors.New("terminal")
	calls := 0
	policy := NewExponential(5, time.Millisecond).WithClassifier(func(err error) bool {
		return !errors.Is(err, terminal)
	})
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	require.Equal(t, 1, calls)
}

func TestPolicyDo_ContextCanceledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := NewExponential(3, time.Hour).Do(ctx, func(context.Context, int) error {
		cancel()
		return errTransient
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, errTransient)
}

func TestPolicyBackoff_Doubles(t *testing.T) {
	t.Parallel()

	p := NewExponential(2, time.Second)
	require.Equal(t, time.Second, p.Backoff(0))
	require.Equal(t, 2*time.Second, p.Backoff(1))
	require.Equal(t, 4*time.Second, p.Backoff(2))

	p.MaxDelay = 3 * time.Second
	require.Equal(t, 3*time.Second, p.Backoff(2))
}

func TestPollUntil(t *testing.T) {
	t.Parallel()

	poll := Poll{InitialDelay: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 4}

	calls := 0
	err := poll.Until(context.Background(), func(context.Context, int) (bool, error) {
		calls++
		return calls == 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = poll.Until(context.Background(), func(context.Context, int) (bool, error) {
		calls++
		return false, nil
	})
	require.ErrorIs(t, err, ErrPollExhausted)
	require.Equal(t, 4, calls)

	boom := errors.New("job failed")
	err = poll.Until(context.Background(), func(context.Context, int) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestPolicyDo_RetriesRequestTimeouts(t *testing.T) {
	t.Parallel()

	// Per-request timeouts wrap context.DeadlineExceeded while the caller's
	// context is still live.
	timeout := fmt.Errorf("client timeout: %w", context.DeadlineExceeded)
	calls := 0
	err := NewExponential(2, time.Millisecond).Do(context.Background(), func(context.Context, int) error {
		calls++
		return timeout
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 3, calls)
	require.True(t, RetryUnlessCanceled(timeout))
	require.False(t, RetryUnlessCanceled(context.Canceled))
}

func TestPolicyDo_StopsWhenCallerDeadlinePasses(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	err := NewExponential(5, time.Millisecond).Do(ctx, func(ctx context.Context, _ int) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}
