package discussion

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Snapshot is the export of one discussion thread.
type Snapshot struct {
	Question SnapshotQuestion  `json:"question"`
	Meta     SnapshotMeta      `json:"meta"`
	Messages []SnapshotMessage `json:"messages"`
}

type SnapshotQuestion struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type SnapshotMeta struct {
	MessageCount int        `json:"message_count"`
	ClosedAt     *time.Time `json:"closed_at"`
}

// SnapshotMessage is one message. Order is its 1-based position in the thread and
// ReplyTo the order of its parent, nil when the parent is not in the thread.
type SnapshotMessage struct {
	Order         int    `json:"order"`
	Text          string `json:"text"`
	ReplyTo       *int   `json:"reply_to"`
	ReactionCount int    `json:"reaction_count"`
}

// BuildSnapshot exports the discussion of a question. A question without a topic
// yields an empty message list.
func BuildSnapshot(ctx context.Context, store Store, questionID int64) (*Snapshot, error) {
	q, err := store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot question %d: %w", questionID, err)
	}

	snap := &Snapshot{
		Question: SnapshotQuestion{ID: q.ID, Text: q.Body},
		Messages: []SnapshotMessage{},
	}

	binding, err := store.GetBinding(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot question %d: %w", questionID, err)
	}

	if binding == nil {
		return snap, nil
	}

	rows, err := store.ListThreadMessages(ctx, binding.ChatID, binding.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("snapshot question %d: %w", questionID, err)
	}

	order := make(map[int64]int, len(rows))
	replyIDs := make([]int64, 0, len(rows))

	for i, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}

		order[row.MessageID] = i + 1
		replyIDs = append(replyIDs, row.ReplyToMessageID)
		snap.Messages = append(snap.Messages, SnapshotMessage{
			Order:         i + 1,
			Text:          text,
			ReactionCount: max(0, row.ReactionCount),
		})
	}

	for i, replyID := range replyIDs {
		if pos, ok := order[replyID]; ok && replyID != 0 {
			snap.Messages[i].ReplyTo = &pos
		}
	}

	snap.Meta.MessageCount = len(snap.Messages)

	if !binding.ClosedAt.IsZero() {
		closedAt := binding.ClosedAt.UTC()
		snap.Meta.ClosedAt = &closedAt
	}

	return snap, nil
}

// Snapshot exports the discussion of a question.
func (in *Ingestor) Snapshot(ctx context.Context, questionID int64) (*Snapshot, error) {
	return BuildSnapshot(ctx, in.store, questionID)
}
