package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/platform/observability"
)

// ErrSkipped is returned by a supervised run that found another instance doing the work.
var ErrSkipped = errors.New("run skipped")

const (
	logFieldRunID    = "run_id"
	logFieldSweep    = "sweep"
	logFieldDuration = "duration"

	runStatusOK      = "ok"
	runStatusSkipped = "skipped"
	runStatusError   = "error"
)

// Supervise runs one pass of a periodic job. The pass gets a run id, its start,
// end and duration are logged, and the outcome is recorded in the sweep metrics.
// The run logger is attached to the context passed to fn (see zerolog.Ctx).
// Errors are logged and returned; panics are recovered and logged.
func Supervise(ctx context.Context, logger *zerolog.Logger, name string, fn func(ctx context.Context) error) (err error) {
	runLogger := getLogger(logger).With().
		Str(logFieldSweep, name).
		Str(logFieldRunID, uuid.NewString()).
		Logger()

	start := time.Now()

	runLogger.Info().Msg("sweep started")

	defer func() {
		if r := recover(); r != nil {
			runLogger.Error().Interface("panic", r).Msg("sweep panicked")

			err = errors.New("sweep panicked")
		}

		elapsed := time.Since(start)
		observability.SweepDuration.WithLabelValues(name).Observe(elapsed.Seconds())

		switch {
		case err == nil:
			observability.SweepRuns.WithLabelValues(name, runStatusOK).Inc()
			runLogger.Info().Dur(logFieldDuration, elapsed).Msg("sweep finished")
		case errors.Is(err, ErrSkipped):
			observability.SweepRuns.WithLabelValues(name, runStatusSkipped).Inc()
			runLogger.Info().Dur(logFieldDuration, elapsed).Msg("sweep skipped, lock held elsewhere")
		default:
			observability.SweepRuns.WithLabelValues(name, runStatusError).Inc()
			runLogger.Error().Err(err).Dur(logFieldDuration, elapsed).Msg("sweep failed")
		}
	}()

	return fn(runLogger.WithContext(ctx))
}
