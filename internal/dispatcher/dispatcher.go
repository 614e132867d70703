// Package dispatcher launches detached per-purchase pipelines and tracks them
// so the process can drain before exit.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/metrics"
)

// ErrDraining is returned by Launch once Drain has begun.
var ErrDraining = errors.New("dispatcher is draining")

// Dispatcher runs tasks in their own goroutines, at most maxConcurrent at a time.
// Tasks beyond the limit wait for a slot without blocking the launcher.
type Dispatcher struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

// New creates a Dispatcher. A non-positive maxConcurrent means unbounded.
func New(maxConcurrent int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger}
	if maxConcurrent > 0 {
		d.slots = make(chan struct{}, maxConcurrent)
	}
	return d
}

// Launch starts task detached from ctx's cancellation; values on ctx are kept.
func (d *Dispatcher) Launch(ctx context.Context, name string, task func(ctx context.Context)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("launch %s: %w", name, ErrDraining)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		if d.slots != nil {
			d.slots <- struct{}{}
			defer func() { <-d.slots }()
		}
		metrics.IncActivePipelines()
		defer metrics.DecActivePipelines()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		task(detached)
	}()
	return nil
}

// Drain stops accepting tasks and waits up to timeout for running ones.
func (d *Dispatcher) Drain(timeout time.Duration) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("drain pipelines: timed out after %s", timeout)
	}
}
