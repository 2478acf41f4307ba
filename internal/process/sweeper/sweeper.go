// Package sweeper runs the periodic auto-close and auto-publish passes.
//
// Each pass holds a database advisory lock so that only one instance sweeps at a
// time, and drives questions through the lifecycle engine exactly as a manual
// action would. A failure on one question never stops the pass.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/platform/observability"
	"github.com/lueurxax/question-forum/internal/platform/worker"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

const (
	SweepAutoClose   = "auto_close"
	SweepAutoPublish = "auto_publish"

	autoCloseLockID   int64 = 2001
	autoPublishLockID int64 = 2002

	itemDone    = "done"
	itemSkipped = "skipped"
	itemFailed  = "failed"

	logKeyQuestionID = "question_id"
)

// ErrPartialFailure is returned when some questions of a pass failed.
var ErrPartialFailure = errors.New("some questions failed")

// Lifecycle is the subset of the engine the sweeps drive.
type Lifecycle interface {
	Publish(ctx context.Context, questionID int64) (*lifecycle.TransitionReport, error)
	CloseDiscussion(ctx context.Context, questionID int64, actor string) (*lifecycle.TransitionReport, error)
}

// Store finds the work of a pass.
type Store interface {
	ports.SweepRepository
	WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error)
}

// Config controls the sweep cadence.
type Config struct {
	AutoCloseInterval   time.Duration
	AutoPublishEnabled  bool
	AutoPublishInterval time.Duration
	PublishPolicy       ports.PublishPolicy
}

// Sweeper owns both periodic passes.
type Sweeper struct {
	store  Store
	engine Lifecycle
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates a Sweeper.
func New(store Store, engine Lifecycle, cfg Config, logger *zerolog.Logger) *Sweeper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.PublishPolicy == "" {
		cfg.PublishPolicy = ports.PublishByVotes
	}

	return &Sweeper{store: store, engine: engine, cfg: cfg, logger: logger, now: time.Now}
}

// Run schedules both passes until ctx is cancelled. Auto-close also runs once on start.
func (s *Sweeper) Run(ctx context.Context) error {
	tasks := []worker.TickerTask{{
		Name:       SweepAutoClose,
		Interval:   s.cfg.AutoCloseInterval,
		RunOnStart: true,
		Run:        func(ctx context.Context) { _ = s.supervised(ctx, SweepAutoClose, s.AutoClose) }, //nolint:errcheck // logged by the supervisor
	}}

	if s.cfg.AutoPublishEnabled {
		tasks = append(tasks, worker.TickerTask{
			Name:     SweepAutoPublish,
			Interval: s.cfg.AutoPublishInterval,
			Run:      func(ctx context.Context) { _ = s.supervised(ctx, SweepAutoPublish, s.AutoPublish) }, //nolint:errcheck // logged by the supervisor
		})
	}

	return worker.TickerLoop(ctx, worker.TickerConfig{Name: "sweeper", Tasks: tasks, Logger: s.logger})
}

func (s *Sweeper) supervised(ctx context.Context, name string, pass func(ctx context.Context) error) error {
	return worker.Supervise(ctx, s.logger, name, pass)
}

// AutoClose closes every open discussion whose deadline has passed.
// It returns worker.ErrSkipped when another instance holds the sweep lock.
func (s *Sweeper) AutoClose(ctx context.Context) error {
	acquired, err := s.store.WithAdvisoryLock(ctx, autoCloseLockID, func(ctx context.Context) error {
		ids, err := s.store.ListDueForClose(ctx, s.now().UTC())
		if err != nil {
			return fmt.Errorf("list due discussions: %w", err)
		}

		failed := 0

		for _, id := range ids {
			if ctx.Err() != nil {
				return fmt.Errorf("auto-close interrupted: %w", ctx.Err())
			}

			_, err := s.engine.CloseDiscussion(ctx, id, lifecycle.SystemActor)
			if s.record(ctx, SweepAutoClose, id, err) == itemFailed {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("auto-close %d of %d: %w", failed, len(ids), ErrPartialFailure)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if !acquired {
		return worker.ErrSkipped
	}

	return nil
}

// AutoPublish publishes at most one queued question chosen by the configured policy.
// SCHEDULED questions go before VOTING ones.
func (s *Sweeper) AutoPublish(ctx context.Context) error {
	acquired, err := s.store.WithAdvisoryLock(ctx, autoPublishLockID, func(ctx context.Context) error {
		q, err := s.store.NextPublishCandidate(ctx, s.cfg.PublishPolicy)
		if err != nil {
			return fmt.Errorf("pick publish candidate: %w", err)
		}

		if q == nil {
			s.log(ctx).Debug().Msg("nothing to publish")

			return nil
		}

		s.log(ctx).Info().
			Int64(logKeyQuestionID, q.ID).
			Str("status", string(q.Status)).
			Int("votes", q.VotesCount).
			Str("policy", string(s.cfg.PublishPolicy)).
			Msg("publishing queued question")

		_, err = s.engine.Publish(ctx, q.ID)
		if s.record(ctx, SweepAutoPublish, q.ID, err) == itemFailed {
			return fmt.Errorf("auto-publish question %d: %w", q.ID, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if !acquired {
		return worker.ErrSkipped
	}

	return nil
}

// record classifies one item. A rejected precondition means another actor got
// there first and is not a failure of the pass.
func (s *Sweeper) record(ctx context.Context, sweep string, questionID int64, err error) string {
	outcome := itemDone

	switch {
	case err == nil:
		s.log(ctx).Info().Int64(logKeyQuestionID, questionID).Msg("sweep item done")
	case coreerrors.IsPrecondition(err):
		outcome = itemSkipped
		s.log(ctx).Info().Err(err).Int64(logKeyQuestionID, questionID).Msg("sweep item skipped")
	default:
		outcome = itemFailed
		s.log(ctx).Error().Err(err).Int64(logKeyQuestionID, questionID).Msg("sweep item failed")
	}

	observability.SweepItems.WithLabelValues(sweep, outcome).Inc()

	return outcome
}

// log prefers the run logger attached by the supervisor.
func (s *Sweeper) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}

	return s.logger
}

// ParsePolicy validates an auto-publish policy name.
func ParsePolicy(name string) (ports.PublishPolicy, error) {
	switch p := ports.PublishPolicy(name); p {
	case ports.PublishByVotes, ports.PublishOldest:
		return p, nil
	case "":
		return ports.PublishByVotes, nil
	default:
		return "", fmt.Errorf("publish policy %q: %w", name, coreerrors.ErrInvalidInput)
	}
}

var _ Lifecycle = (*lifecycle.Engine)(nil)

