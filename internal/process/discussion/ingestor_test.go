package discussion

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
)

const (
	chatID   = -1005550001
	threadID = 77
)

var base = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func newIngestor(t *testing.T) (*Ingestor, *mocks.Store, int64) {
	t.Helper()

	store := mocks.NewStore()
	ctx := context.Background()

	q, err := store.CreateQuestion(ctx, ports.QuestionDraft{Body: "Why do we fast?"})
	require.NoError(t, err)

	_, err = store.MarkPublished(ctx, domain.StatusVoting, domain.DiscussionBinding{
		QuestionID: q.ID, ChatID: chatID, ThreadID: threadID, OpenedAt: base, CloseAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	logger := zerolog.Nop()

	return NewIngestor(store, &logger), store, q.ID
}

func newMessage(id int64, text string) domain.NewMessageEvent {
	return domain.NewMessageEvent{
		ChatID:     chatID,
		MessageID:  id,
		ThreadID:   threadID,
		SenderID:   500 + id,
		SenderName: "@student",
		Text:       text,
		Date:       base.Add(time.Duration(id) * time.Minute),
	}
}

func messagesCount(t *testing.T, store *mocks.Store, questionID int64) int {
	t.Helper()

	b, err := store.GetBinding(context.Background(), questionID)
	require.NoError(t, err)

	return b.MessagesCount
}

func TestOnNewMessageFiltering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ev *domain.NewMessageEvent)
		stored bool
	}{
		{name: "tracked thread", stored: true},
		{name: "bot sender", mutate: func(ev *domain.NewMessageEvent) { ev.SenderIsBot = true }},
		{name: "empty text", mutate: func(ev *domain.NewMessageEvent) { ev.Text = "  " }},
		{name: "untracked thread", mutate: func(ev *domain.NewMessageEvent) { ev.ThreadID = 999 }},
		{name: "general topic", mutate: func(ev *domain.NewMessageEvent) { ev.ThreadID = 0 }},
		{name: "other chat", mutate: func(ev *domain.NewMessageEvent) { ev.ChatID = -100999 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, store, qid := newIngestor(t)

			ev := newMessage(1, "hello")
			if tt.mutate != nil {
				tt.mutate(&ev)
			}

			require.NoError(t, in.OnNewMessage(context.Background(), ev))

			if tt.stored {
				assert.Equal(t, 1, store.MessageCount())
				assert.Equal(t, 1, messagesCount(t, store, qid))
			} else {
				assert.Equal(t, 0, store.MessageCount())
				assert.Equal(t, 0, messagesCount(t, store, qid))
			}
		})
	}
}

func TestOnNewMessageReplayCountsOnce(t *testing.T) {
	in, store, qid := newIngestor(t)
	ctx := context.Background()

	ev := newMessage(1, "first")
	require.NoError(t, in.OnNewMessage(ctx, ev))
	require.NoError(t, in.OnNewMessage(ctx, ev))

	assert.Equal(t, 1, store.MessageCount())
	assert.Equal(t, 1, messagesCount(t, store, qid))
}

func TestReplayDoesNotOverwriteEdit(t *testing.T) {
	in, store, _ := newIngestor(t)
	ctx := context.Background()

	require.NoError(t, in.OnNewMessage(ctx, newMessage(1, "original")))
	require.NoError(t, in.OnEditedMessage(ctx, domain.EditedMessageEvent{
		ChatID: chatID, MessageID: 1, ThreadID: threadID, Text: "edited", EditDate: base.Add(time.Hour),
	}))
	require.NoError(t, in.OnNewMessage(ctx, newMessage(1, "original")))

	msg, ok := store.Message(chatID, 1)
	require.True(t, ok)
	assert.Equal(t, "edited", msg.Text)
	assert.Equal(t, base.Add(time.Hour), msg.EditedAt)
}

func TestOnEditedMessageDoesNotCreate(t *testing.T) {
	in, store, qid := newIngestor(t)

	require.NoError(t, in.OnEditedMessage(context.Background(), domain.EditedMessageEvent{
		ChatID: chatID, MessageID: 42, ThreadID: threadID, Text: "edit of unknown",
	}))

	assert.Equal(t, 0, store.MessageCount())
	assert.Equal(t, 0, messagesCount(t, store, qid))
}

func TestReplyToThreadRootIsDropped(t *testing.T) {
	in, store, _ := newIngestor(t)
	ctx := context.Background()

	ev := newMessage(1, "top level")
	ev.ReplyToMessageID = threadID
	require.NoError(t, in.OnNewMessage(ctx, ev))

	msg, ok := store.Message(chatID, 1)
	require.True(t, ok)
	assert.Zero(t, msg.ReplyToMessageID)
}

func TestReactionPolicy(t *testing.T) {
	tests := []struct {
		name  string
		start int
		apply func(in *Ingestor) error
		want  int
	}{
		{
			name:  "delta adds difference",
			start: 4,
			apply: func(in *Ingestor) error {
				return in.OnReactionDelta(context.Background(), domain.ReactionDeltaEvent{ChatID: chatID, MessageID: 1, OldCount: 2, NewCount: 5})
			},
			want: 7,
		},
		{
			name:  "negative delta floors at zero",
			start: 1,
			apply: func(in *Ingestor) error {
				return in.OnReactionDelta(context.Background(), domain.ReactionDeltaEvent{ChatID: chatID, MessageID: 1, OldCount: 3, NewCount: 0})
			},
			want: 0,
		},
		{
			name:  "total of one is additive",
			start: 4,
			apply: func(in *Ingestor) error {
				return in.OnReactionTotal(context.Background(), domain.ReactionTotalEvent{ChatID: chatID, MessageID: 1, Total: 1})
			},
			want: 5,
		},
		{
			name:  "other totals overwrite",
			start: 4,
			apply: func(in *Ingestor) error {
				return in.OnReactionTotal(context.Background(), domain.ReactionTotalEvent{ChatID: chatID, MessageID: 1, Total: 7})
			},
			want: 7,
		},
		{
			name:  "total of zero overwrites",
			start: 4,
			apply: func(in *Ingestor) error {
				return in.OnReactionTotal(context.Background(), domain.ReactionTotalEvent{ChatID: chatID, MessageID: 1, Total: 0})
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, store, _ := newIngestor(t)
			ctx := context.Background()

			require.NoError(t, in.OnNewMessage(ctx, newMessage(1, "hi")))
			_, err := store.SetReactions(ctx, chatID, 1, tt.start)
			require.NoError(t, err)

			require.NoError(t, tt.apply(in))

			msg, ok := store.Message(chatID, 1)
			require.True(t, ok)
			assert.Equal(t, tt.want, msg.ReactionCount)
		})
	}
}

func TestReactionsFromZero(t *testing.T) {
	in, store, _ := newIngestor(t)
	ctx := context.Background()

	require.NoError(t, in.OnNewMessage(ctx, newMessage(1, "hi")))

	require.NoError(t, in.OnReactionDelta(ctx, domain.ReactionDeltaEvent{ChatID: chatID, MessageID: 1, OldCount: 2, NewCount: 5}))
	msg, _ := store.Message(chatID, 1)
	assert.Equal(t, 3, msg.ReactionCount)

	require.NoError(t, in.OnReactionTotal(ctx, domain.ReactionTotalEvent{ChatID: chatID, MessageID: 1, Total: 1}))
	msg, _ = store.Message(chatID, 1)
	assert.Equal(t, 4, msg.ReactionCount)

	require.NoError(t, in.OnReactionTotal(ctx, domain.ReactionTotalEvent{ChatID: chatID, MessageID: 1, Total: 7}))
	msg, _ = store.Message(chatID, 1)
	assert.Equal(t, 7, msg.ReactionCount)
}

func TestReactionOnUnknownMessageIsNoop(t *testing.T) {
	in, store, _ := newIngestor(t)

	require.NoError(t, in.OnReactionTotal(context.Background(), domain.ReactionTotalEvent{ChatID: chatID, MessageID: 5, Total: 3}))
	assert.Equal(t, 0, store.MessageCount())
}

func TestSnapshot(t *testing.T) {
	in, store, qid := newIngestor(t)
	ctx := context.Background()

	first := newMessage(1, "Because of tradition")
	second := newMessage(2, "Source?")
	second.ReplyToMessageID = 1
	third := newMessage(3, "Unrelated reply")
	third.ReplyToMessageID = 12345

	for _, ev := range []domain.NewMessageEvent{third, first, second} {
		require.NoError(t, in.OnNewMessage(ctx, ev))
	}

	_, err := store.SetReactions(ctx, chatID, 1, 4)
	require.NoError(t, err)

	snap, err := in.Snapshot(ctx, qid)
	require.NoError(t, err)

	one := 1
	want := []SnapshotMessage{
		{Order: 1, Text: "Because of tradition", ReactionCount: 4},
		{Order: 2, Text: "Source?", ReplyTo: &one},
		{Order: 3, Text: "Unrelated reply"},
	}

	assert.Equal(t, SnapshotQuestion{ID: qid, Text: "Why do we fast?"}, snap.Question)
	assert.Equal(t, want, snap.Messages)
	assert.Equal(t, 3, snap.Meta.MessageCount)
	assert.Nil(t, snap.Meta.ClosedAt)

	require.NoError(t, store.MarkClosed(ctx, qid, base.Add(2*time.Hour), 0))

	snap, err = in.Snapshot(ctx, qid)
	require.NoError(t, err)
	require.NotNil(t, snap.Meta.ClosedAt)
	assert.Equal(t, base.Add(2*time.Hour), *snap.Meta.ClosedAt)

	raw, err := json.Marshal(snap.Messages[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"order":3,"text":"Unrelated reply","reply_to":null,"reaction_count":0}`, string(raw))
}

func TestSnapshotWithoutTopic(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()

	q, err := store.CreateQuestion(ctx, ports.QuestionDraft{Body: "Unpublished"})
	require.NoError(t, err)

	snap, err := BuildSnapshot(ctx, store, q.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
	assert.NotNil(t, snap.Messages)
	assert.Equal(t, 0, snap.Meta.MessageCount)

	_, err = BuildSnapshot(ctx, store, 404)
	require.ErrorIs(t, err, coreerrors.ErrQuestionNotFound)
}
