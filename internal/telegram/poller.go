package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/platform/observability"
)

const (
	pollErrorBackoff = 3 * time.Second

	eventNew     = "new_message"
	eventEdited  = "edited_message"
	eventDelta   = "reaction_delta"
	eventTotal   = "reaction_total"
	outcomeOK    = "ok"
	outcomeError = "error"
)

// EventHandler consumes parsed chat events.
type EventHandler interface {
	OnNewMessage(ctx context.Context, ev domain.NewMessageEvent) error
	OnEditedMessage(ctx context.Context, ev domain.EditedMessageEvent) error
	OnReactionDelta(ctx context.Context, ev domain.ReactionDeltaEvent) error
	OnReactionTotal(ctx context.Context, ev domain.ReactionTotalEvent) error
}

// Poller long-polls getUpdates and dispatches events to a handler.
type Poller struct {
	*caller
	handler     EventHandler
	pollTimeout time.Duration
	offset      int
}

// NewPoller builds a poller. api's HTTP timeout must exceed pollTimeout.
func NewPoller(api *tgbotapi.BotAPI, handler EventHandler, pollTimeout time.Duration, logger *zerolog.Logger) *Poller {
	return &Poller{
		caller:      newCaller(api, 0, logger),
		handler:     handler,
		pollTimeout: pollTimeout,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("poll_timeout", p.pollTimeout).Msg("telegram update poller started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			p.logger.Error().Err(err).Msg("getUpdates failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollErrorBackoff):
			}
		}
	}
}

// PollOnce fetches one batch of updates and dispatches them in order.
func (p *Poller) PollOnce(ctx context.Context) error {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", p.offset)
	params.AddNonZero("timeout", int(p.pollTimeout.Seconds()))

	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("encode allowed updates: %w", err)
	}

	raw, err := p.call(ctx, "getUpdates", params)
	if err != nil {
		return err
	}

	var updates []rawUpdate
	if err := json.Unmarshal(raw, &updates); err != nil {
		return fmt.Errorf("decode updates: %w", err)
	}

	for i := range updates {
		p.dispatch(ctx, &updates[i])
		p.offset = updates[i].UpdateID + 1
	}

	return nil
}

// dispatch never fails the batch: a bad event is logged and skipped.
func (p *Poller) dispatch(ctx context.Context, u *rawUpdate) {
	var (
		kind string
		err  error
	)

	switch {
	case u.Message != nil:
		kind, err = eventNew, p.handler.OnNewMessage(ctx, toNewMessage(u.Message))
	case u.EditedMessage != nil:
		kind, err = eventEdited, p.handler.OnEditedMessage(ctx, toEditedMessage(u.EditedMessage))
	case u.MessageReaction != nil:
		kind, err = eventDelta, p.handler.OnReactionDelta(ctx, toReactionDelta(u.MessageReaction))
	case u.MessageReactionCount != nil:
		kind, err = eventTotal, p.handler.OnReactionTotal(ctx, toReactionTotal(u.MessageReactionCount))
	default:
		return
	}

	if err != nil {
		observability.DiscussionEvents.WithLabelValues(kind, outcomeError).Inc()
		p.logger.Error().Err(err).Int("update_id", u.UpdateID).Str("kind", kind).Msg("failed to handle update")

		return
	}

	observability.DiscussionEvents.WithLabelValues(kind, outcomeOK).Inc()
}
