// Package history backfills discussion messages that were posted before the bot
// was listening. It reads every bound topic through a user account over MTProto
// and stores the replies through the same idempotent path as live ingestion.
package history

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/platform/observability"
)

const (
	defaultPageSize = 100

	logKeyChatID   = "chat_id"
	logKeyThreadID = "thread_id"
)

// Reply is one message read from a topic.
type Reply struct {
	MessageID        int64
	SenderID         int64
	SenderName       string
	SenderIsBot      bool
	Text             string
	ReplyToMessageID int64
	ReactionCount    int
	Date             time.Time
	EditDate         time.Time
}

// Page is one batch of replies, newest first. NextOffset is the offset of the
// following page, 0 when the thread is exhausted.
type Page struct {
	Replies    []Reply
	NextOffset int64
}

// Fetcher pages through the replies of a topic. A page starts below offsetID,
// or at the newest message when offsetID is 0.
type Fetcher interface {
	Replies(ctx context.Context, chatID, threadID, offsetID int64, limit int) (Page, error)
}

// Store is the persistence the importer writes to.
type Store interface {
	ListBindings(ctx context.Context) ([]domain.DiscussionBinding, error)
	UpsertMessage(ctx context.Context, msg domain.DiscussionMessage) (bool, error)
	SetReactions(ctx context.Context, chatID, messageID int64, total int) (bool, error)
}

// Result counts what an import did.
type Result struct {
	Threads  int
	Inserted int
	Skipped  int
}

// Importer copies topic history into the discussion store.
type Importer struct {
	store    Store
	pageSize int
	logger   *zerolog.Logger
}

// NewImporter creates an Importer. pageSize defaults to 100.
func NewImporter(store Store, pageSize int, logger *zerolog.Logger) *Importer {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Importer{store: store, pageSize: pageSize, logger: logger}
}

// Import reads every bound topic oldest first. Messages already stored, empty
// messages and bot messages are skipped.
func (im *Importer) Import(ctx context.Context, fetcher Fetcher) (Result, error) {
	bindings, err := im.store.ListBindings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list bindings: %w", err)
	}

	slices.SortFunc(bindings, func(a, b domain.DiscussionBinding) int {
		return a.OpenedAt.Compare(b.OpenedAt)
	})

	var total Result

	for _, b := range bindings {
		res, err := im.importThread(ctx, fetcher, b)
		total.Threads++
		total.Inserted += res.Inserted
		total.Skipped += res.Skipped

		if err != nil {
			return total, fmt.Errorf("import thread %d: %w", b.ThreadID, err)
		}

		im.logger.Info().
			Int64(logKeyChatID, b.ChatID).
			Int64(logKeyThreadID, b.ThreadID).
			Int("inserted", res.Inserted).
			Int("skipped", res.Skipped).
			Msg("thread history imported")
	}

	im.logger.Info().Int("threads", total.Threads).Int("inserted", total.Inserted).Int("skipped", total.Skipped).Msg("history import done")

	return total, nil
}

func (im *Importer) importThread(ctx context.Context, fetcher Fetcher, b domain.DiscussionBinding) (Result, error) {
	replies, err := im.collect(ctx, fetcher, b)
	if err != nil {
		return Result{}, err
	}

	var res Result

	for i := len(replies) - 1; i >= 0; i-- {
		r := replies[i]

		text := strings.TrimSpace(r.Text)
		if text == "" || r.SenderIsBot {
			res.Skipped++

			continue
		}

		replyTo := r.ReplyToMessageID
		if replyTo == b.ThreadID {
			replyTo = 0
		}

		inserted, err := im.store.UpsertMessage(ctx, domain.DiscussionMessage{
			ChatID:           b.ChatID,
			MessageID:        r.MessageID,
			ThreadID:         b.ThreadID,
			AuthorID:         r.SenderID,
			AuthorName:       r.SenderName,
			Text:             text,
			ReplyToMessageID: replyTo,
			CreatedAt:        r.Date,
			EditedAt:         r.EditDate,
		})
		if err != nil {
			return res, fmt.Errorf("store message %d: %w", r.MessageID, err)
		}

		if !inserted {
			res.Skipped++

			continue
		}

		if r.ReactionCount > 0 {
			if _, err := im.store.SetReactions(ctx, b.ChatID, r.MessageID, r.ReactionCount); err != nil {
				return res, fmt.Errorf("store reactions of message %d: %w", r.MessageID, err)
			}
		}

		res.Inserted++

		observability.HistoryMessagesImported.Inc()
	}

	return res, nil
}

// collect reads all pages of a thread, newest first.
func (im *Importer) collect(ctx context.Context, fetcher Fetcher, b domain.DiscussionBinding) ([]Reply, error) {
	var (
		all    []Reply
		offset int64
	)

	for {
		page, err := fetcher.Replies(ctx, b.ChatID, b.ThreadID, offset, im.pageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Replies...)

		if page.NextOffset == 0 || (offset != 0 && page.NextOffset >= offset) {
			return all, nil
		}

		offset = page.NextOffset
	}
}
