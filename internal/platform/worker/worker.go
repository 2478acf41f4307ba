// Package worker provides the background-execution primitives shared by the
// sweepers, the similarity warmup and async recompute tasks: ticker loops,
// a tracked goroutine group, and panic recovery.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

// Group runs fire-and-forget tasks that outlive the request which started them
// but stop with the group. The zero value is not usable; call NewGroup.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	logger *zerolog.Logger
}

// NewGroup creates a group detached from any request context.
func NewGroup(logger *zerolog.Logger) *Group {
	ctx, cancel := context.WithCancel(context.Background())

	return &Group{ctx: ctx, cancel: cancel, logger: getLogger(logger)}
}

// Go starts fn in a goroutine. Errors are logged, panics recovered.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Debug().Str(logFieldTask, name).Msg("group closed, task dropped")

		return
	}

	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer RecoverPanic(g.logger, name)

		if err := fn(g.ctx); err != nil && g.ctx.Err() == nil {
			g.logger.Warn().Err(err).Str(logFieldTask, name).Msg("background task failed")
		}
	}()
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Close cancels running tasks and waits for them.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
