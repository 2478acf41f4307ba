package history

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
)

const (
	chatID   = -1001500000001
	threadID = 40
)

// fakeFetcher serves replies newest first in pages of the requested size.
type fakeFetcher struct {
	replies []Reply
	offsets []int64
}

func (f *fakeFetcher) Replies(_ context.Context, _, _, offsetID int64, limit int) (Page, error) {
	f.offsets = append(f.offsets, offsetID)

	var page Page

	for _, r := range f.replies {
		if offsetID != 0 && r.MessageID >= offsetID {
			continue
		}

		page.Replies = append(page.Replies, r)
		if len(page.Replies) == limit {
			page.NextOffset = r.MessageID

			break
		}
	}

	return page, nil
}

func newStore(t *testing.T) *mocks.Store {
	t.Helper()

	store := mocks.NewStore()
	ctx := context.Background()

	q, err := store.CreateQuestion(ctx, ports.QuestionDraft{Body: "Why?"})
	require.NoError(t, err)

	_, err = store.MarkPublished(ctx, domain.StatusVoting, domain.DiscussionBinding{
		QuestionID: q.ID, ChatID: chatID, ThreadID: threadID, OpenedAt: time.Now(),
	})
	require.NoError(t, err)

	return store
}

func TestImport(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

	// newest first, as the server returns them
	fetcher := &fakeFetcher{replies: []Reply{
		{MessageID: 46, SenderID: 2, Text: "reply to 44", ReplyToMessageID: 44, Date: base.Add(6 * time.Minute), EditDate: base.Add(8 * time.Minute), ReactionCount: 3},
		{MessageID: 45, SenderID: 9, SenderIsBot: true, Text: "bot says hi", Date: base.Add(5 * time.Minute)},
		{MessageID: 44, SenderID: 1, Text: "top level", ReplyToMessageID: threadID, Date: base.Add(4 * time.Minute)},
		{MessageID: 43, SenderID: 1, Text: "   ", Date: base.Add(3 * time.Minute)},
		{MessageID: 42, SenderID: 3, Text: "already stored", Date: base.Add(2 * time.Minute)},
	}}

	_, err := store.UpsertMessage(ctx, domain.DiscussionMessage{ChatID: chatID, ThreadID: threadID, MessageID: 42, Text: "already stored"})
	require.NoError(t, err)

	logger := zerolog.Nop()
	im := NewImporter(store, 2, &logger)

	res, err := im.Import(ctx, fetcher)
	require.NoError(t, err)
	assert.Equal(t, Result{Threads: 1, Inserted: 2, Skipped: 3}, res)
	assert.Equal(t, []int64{0, 45, 43}, fetcher.offsets)

	top, ok := store.Message(chatID, 44)
	require.True(t, ok)
	assert.Zero(t, top.ReplyToMessageID)
	assert.Equal(t, base.Add(4*time.Minute), top.CreatedAt)

	reply, ok := store.Message(chatID, 46)
	require.True(t, ok)
	assert.Equal(t, int64(44), reply.ReplyToMessageID)
	assert.Equal(t, 3, reply.ReactionCount)
	assert.Equal(t, base.Add(8*time.Minute), reply.EditedAt)
	assert.True(t, top.EditedAt.IsZero())

	_, ok = store.Message(chatID, 45)
	assert.False(t, ok)

	// a second run inserts nothing
	fetcher.offsets = nil
	res, err = im.Import(ctx, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, store.MessageCount())
}

func TestToPage(t *testing.T) {
	withUser := &tg.Message{ID: 12, Message: "hello", Date: 1_700_000_000}
	withUser.SetFromID(&tg.PeerUser{UserID: 7})
	withUser.SetReplyTo(&tg.MessageReplyHeader{ReplyToMsgID: 10})
	withUser.SetEditDate(1_700_000_060)
	withUser.SetReactions(tg.MessageReactions{Results: []tg.ReactionCount{
		{Reaction: &tg.ReactionEmoji{Emoticon: "👍"}, Count: 2},
		{Reaction: &tg.ReactionEmoji{Emoticon: "🔥"}, Count: 1},
	}})

	fromBot := &tg.Message{ID: 11, Message: "bot", Date: 1_700_000_000}
	fromBot.SetFromID(&tg.PeerUser{UserID: 8})

	users := []tg.UserClass{
		&tg.User{ID: 7, Username: "student"},
		&tg.User{ID: 8, Bot: true, FirstName: "Forum", LastName: "Bot"},
	}

	messages := []tg.MessageClass{withUser, fromBot, &tg.MessageService{ID: 9}}

	page := toPage(messages, users, 3)
	require.Len(t, page.Replies, 2)
	assert.Equal(t, int64(9), page.NextOffset)

	first := page.Replies[0]
	assert.Equal(t, int64(12), first.MessageID)
	assert.Equal(t, int64(7), first.SenderID)
	assert.Equal(t, "@student", first.SenderName)
	assert.False(t, first.SenderIsBot)
	assert.Equal(t, int64(10), first.ReplyToMessageID)
	assert.Equal(t, 3, first.ReactionCount)
	assert.Equal(t, time.Unix(1_700_000_060, 0).UTC(), first.EditDate)

	second := page.Replies[1]
	assert.True(t, second.SenderIsBot)
	assert.Equal(t, "Forum Bot", second.SenderName)

	assert.Zero(t, toPage(messages, users, 10).NextOffset)
}

func TestChannelIDFromChatID(t *testing.T) {
	tests := []struct {
		chatID  int64
		want    int64
		wantErr bool
	}{
		{chatID: -1001234567890, want: 1234567890},
		{chatID: -4567, wantErr: true},
		{chatID: 12345, wantErr: true},
	}

	for _, tt := range tests {
		got, err := channelIDFromChatID(tt.chatID)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrNotSupergroup)

			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTerminalAuth(t *testing.T) {
	var out bytes.Buffer

	logger := zerolog.Nop()
	a := &terminalAuth{
		in:     bufio.NewReader(strings.NewReader("+1 (555) 010-9999\n12345\nsecret")),
		out:    &out,
		logger: &logger,
	}
	ctx := context.Background()

	phone, err := a.Phone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+15550109999", phone)

	code, err := a.Code(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "12345", code)

	password, err := a.Password(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	assert.Contains(t, out.String(), "Enter phone: ")

	_, err = a.SignUp(ctx)
	require.ErrorIs(t, err, ErrSignupNotSupported)

	configured := &terminalAuth{phone: "+447700900123", password: "pw", logger: &logger}
	phone, err = configured.Phone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+447700900123", phone)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "****", maskPhone("+123"))
	assert.Equal(t, "+15****99", maskPhone("+15550109999"))
}
