package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ctxKey struct{}

// TestLaunchDetachesFromCancellation ensures a canceled request context does not
// stop a launched task.
func TestLaunchDetachesFromCancellation(t *testing.T) {
	t.Parallel()

	d := New(0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	got := make(chan error, 1)
	value := make(chan any, 1)

	require.NoError(t, d.Launch(ctx, "task", func(ctx context.Context) {
		time.Sleep(20 * time.Millisecond)
		got <- ctx.Err()
		value <- ctx.Value(ctxKey{})
	}))
	cancel()

	require.NoError(t, d.Drain(time.Second))
	require.NoError(t, <-got)
	require.Equal(t, "v", <-value)
}

// TestLaunchBoundsConcurrency verifies no more than maxConcurrent tasks run at once.
func TestLaunchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	d := New(2, nil)
	var running, peak atomic.Int32
	for i := 0; i < 6; i++ {
		require.NoError(t, d.Launch(context.Background(), "task", func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}))
	}
	require.NoError(t, d.Drain(2*time.Second))
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Positive(t, peak.Load())
}

// TestLaunchRecoversPanics keeps a panicking task from crashing the process.
func TestLaunchRecoversPanics(t *testing.T) {
	t.Parallel()

	d := New(1, nil)
	require.NoError(t, d.Launch(context.Background(), "boom", func(context.Context) { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, d.Launch(context.Background(), "after", func(context.Context) { close(ran) }))
	require.NoError(t, d.Drain(time.Second))
	<-ran
}

// TestDrainRejectsNewTasksAndTimesOut covers both drain outcomes.
func TestDrainRejectsNewTasksAndTimesOut(t *testing.T) {
	t.Parallel()

	d := New(0, nil)
	release := make(chan struct{})
	require.NoError(t, d.Launch(context.Background(), "slow", func(context.Context) { <-release }))

	require.Error(t, d.Drain(10*time.Millisecond))
	require.ErrorIs(t, d.Launch(context.Background(), "late", func(context.Context) {}), ErrDraining)

	close(release)
	require.NoError(t, d.Drain(time.Second))
}
