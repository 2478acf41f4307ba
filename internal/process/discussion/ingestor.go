// Package discussion stores messages and reactions from bound forum topics and
// exports a thread snapshot.
//
// Events from untracked threads, from bots, or without text are dropped
// silently. All writes are keyed by (chat_id, message_id) and safe to replay.
package discussion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

const (
	logKeyChatID    = "chat_id"
	logKeyMessageID = "message_id"
	logKeyThreadID  = "thread_id"
)

// Store is the persistence the ingestor and snapshot read and write.
type Store interface {
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	GetBinding(ctx context.Context, questionID int64) (*domain.DiscussionBinding, error)
	ports.DiscussionRepository
}

// Ingestor applies inbound chat events to stored discussion messages.
type Ingestor struct {
	store  Store
	logger *zerolog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(store Store, logger *zerolog.Logger) *Ingestor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Ingestor{store: store, logger: logger}
}

// OnNewMessage stores a message posted in a bound topic. A replayed event updates
// nothing but the text of a message that was never edited.
func (in *Ingestor) OnNewMessage(ctx context.Context, ev domain.NewMessageEvent) error {
	text := strings.TrimSpace(ev.Text)
	if ev.SenderIsBot || text == "" || ev.ThreadID == 0 {
		return nil
	}

	binding, err := in.store.GetBindingByThread(ctx, ev.ChatID, ev.ThreadID)
	if err != nil {
		return fmt.Errorf("lookup thread %d: %w", ev.ThreadID, err)
	}

	if binding == nil {
		return nil
	}

	replyTo := ev.ReplyToMessageID
	if replyTo == ev.ThreadID {
		replyTo = 0
	}

	inserted, err := in.store.UpsertMessage(ctx, domain.DiscussionMessage{
		ChatID:           ev.ChatID,
		MessageID:        ev.MessageID,
		ThreadID:         ev.ThreadID,
		AuthorID:         ev.SenderID,
		AuthorName:       ev.SenderName,
		Text:             text,
		ReplyToMessageID: replyTo,
		CreatedAt:        ev.Date,
	})
	if err != nil {
		return fmt.Errorf("store message %d: %w", ev.MessageID, err)
	}

	in.logger.Debug().
		Int64(logKeyChatID, ev.ChatID).
		Int64(logKeyThreadID, ev.ThreadID).
		Int64(logKeyMessageID, ev.MessageID).
		Bool("inserted", inserted).
		Msg("discussion message stored")

	return nil
}

// OnEditedMessage replaces the text of a stored message. Edits of messages that
// were never stored are ignored.
func (in *Ingestor) OnEditedMessage(ctx context.Context, ev domain.EditedMessageEvent) error {
	text := strings.TrimSpace(ev.Text)
	if ev.SenderIsBot || text == "" {
		return nil
	}

	updated, err := in.store.UpdateMessageText(ctx, ev.ChatID, ev.MessageID, text, ev.EditDate)
	if err != nil {
		return fmt.Errorf("update message %d: %w", ev.MessageID, err)
	}

	if updated {
		in.logger.Debug().Int64(logKeyChatID, ev.ChatID).Int64(logKeyMessageID, ev.MessageID).Msg("discussion message edited")
	}

	return nil
}

// OnReactionDelta adds new minus old to the stored reaction count, floored at zero.
func (in *Ingestor) OnReactionDelta(ctx context.Context, ev domain.ReactionDeltaEvent) error {
	delta := ev.Delta()
	if delta == 0 {
		return nil
	}

	if _, err := in.store.AddReactions(ctx, ev.ChatID, ev.MessageID, delta); err != nil {
		return fmt.Errorf("add reactions to message %d: %w", ev.MessageID, err)
	}

	return nil
}

// OnReactionTotal applies an absolute reaction count. A total of exactly one is
// added to the stored count; any other total overwrites it.
func (in *Ingestor) OnReactionTotal(ctx context.Context, ev domain.ReactionTotalEvent) error {
	var err error

	if ev.Total == 1 {
		_, err = in.store.AddReactions(ctx, ev.ChatID, ev.MessageID, 1)
	} else {
		_, err = in.store.SetReactions(ctx, ev.ChatID, ev.MessageID, max(0, ev.Total))
	}

	if err != nil {
		return fmt.Errorf("apply reaction total to message %d: %w", ev.MessageID, err)
	}

	return nil
}
