package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickerTask represents a task triggered by a ticker.
type TickerTask struct {
	Name       string
	Interval   time.Duration
	Run        func(ctx context.Context)
	RunOnStart bool
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks each run on their own ticker. Tasks with a non-positive interval are skipped.
	Tasks []TickerTask

	Logger *zerolog.Logger
}

// TickerLoop runs every task on its own ticker until ctx is cancelled.
// A task never overlaps with itself; a slow run drops the ticks it missed.
// Returns a wrapped context error when the context is canceled.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(cfg.Tasks)).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	var wg sync.WaitGroup

	for _, task := range cfg.Tasks {
		if task.Interval <= 0 || task.Run == nil {
			logger.Debug().Str(logFieldTask, task.Name).Msg("task disabled")

			continue
		}

		wg.Add(1)

		go func(task TickerTask) {
			defer wg.Done()
			runTask(ctx, task, logger)
		}(task)
	}

	wg.Wait()
	<-ctx.Done()

	return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
}

func runTask(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	run := func() {
		defer RecoverPanic(logger, task.Name)

		logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
		task.Run(ctx)
	}

	if task.RunOnStart {
		run()
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
