package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

type recordedRequest struct {
	method string
	form   url.Values
}

type fakeBotServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]string
}

func newFakeBotServer(t *testing.T, replies map[string]string) (*fakeBotServer, *httptest.Server) {
	t.Helper()

	f := &fakeBotServer{replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		method := path.Base(r.URL.Path)
		if method != "getMe" {
			f.mu.Lock()
			f.requests = append(f.requests, recordedRequest{method: method, form: r.PostForm})
			f.mu.Unlock()
		}

		reply, ok := f.replies[method]
		if !ok {
			reply = `{"ok":true,"result":true}`
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeBotServer) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]recordedRequest(nil), f.requests...)
}

const getMeReply = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"forum","username":"forum_bot"}}`

func newTestMessenger(t *testing.T, replies map[string]string) (*Messenger, *fakeBotServer) {
	t.Helper()

	replies["getMe"] = getMeReply
	fake, srv := newFakeBotServer(t, replies)

	api, err := NewBotAPI("TOKEN", srv.URL+"/bot%s/%s", time.Second)
	require.NoError(t, err)

	logger := zerolog.Nop()

	return NewMessenger(api, 1000, 10, &logger), fake
}

func TestMessengerOpenTopicAndSend(t *testing.T) {
	m, fake := newTestMessenger(t, map[string]string{
		"createForumTopic": `{"ok":true,"result":{"message_thread_id":77,"name":"t"}}`,
		"sendMessage":      `{"ok":true,"result":{"message_id":501,"date":0,"chat":{"id":-100}}}`,
	})

	ctx := context.Background()

	topic, err := m.OpenTopic(ctx, -100, "Title", "emoji-1")
	require.NoError(t, err)
	assert.Equal(t, ports.TopicRef{ChatID: -100, ThreadID: 77}, topic)

	id, err := m.SendMessage(ctx, topic, ports.OutgoingMessage{
		Text:    "this text is longer than ten units",
		Buttons: [][]ports.Button{{{Text: "Open", URL: "https://example.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)

	assert.Equal(t, "createForumTopic", reqs[0].method)
	assert.Equal(t, "emoji-1", reqs[0].form.Get("icon_custom_emoji_id"))
	assert.Equal(t, "Title", reqs[0].form.Get("name"))

	assert.Equal(t, "sendMessage", reqs[1].method)
	assert.Equal(t, "77", reqs[1].form.Get("message_thread_id"))
	assert.Equal(t, "this text ", reqs[1].form.Get("text"))
	assert.Contains(t, reqs[1].form.Get("reply_markup"), `"url":"https://example.com"`)
}

func TestMessengerTopicCalls(t *testing.T) {
	m, fake := newTestMessenger(t, map[string]string{})
	ctx := context.Background()
	topic := ports.TopicRef{ChatID: -100, ThreadID: 5}

	require.NoError(t, m.ReopenTopic(ctx, topic))
	require.NoError(t, m.CloseTopic(ctx, topic))
	require.NoError(t, m.EditMessageText(ctx, -100, 9, "new"))
	require.NoError(t, m.EditMessageButtons(ctx, -100, 9, nil))

	reqs := fake.recorded()
	require.Len(t, reqs, 4)

	methods := []string{reqs[0].method, reqs[1].method, reqs[2].method, reqs[3].method}
	assert.Equal(t, []string{"reopenForumTopic", "closeForumTopic", "editMessageText", "editMessageReplyMarkup"}, methods)
	assert.Equal(t, "5", reqs[1].form.Get("message_thread_id"))
	assert.Equal(t, "9", reqs[2].form.Get("message_id"))
	assert.JSONEq(t, `{"inline_keyboard":[]}`, reqs[3].form.Get("reply_markup"))
}

func TestMessengerAPIError(t *testing.T) {
	m, _ := newTestMessenger(t, map[string]string{
		"closeForumTopic": `{"ok":false,"error_code":400,"description":"Bad Request: TOPIC_NOT_MODIFIED"}`,
	})

	err := m.CloseTopic(context.Background(), ports.TopicRef{ChatID: -100, ThreadID: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPIC_NOT_MODIFIED")
}

type recordingHandler struct {
	news    []domain.NewMessageEvent
	edits   []domain.EditedMessageEvent
	deltas  []domain.ReactionDeltaEvent
	totals  []domain.ReactionTotalEvent
	failNew bool
}

func (h *recordingHandler) OnNewMessage(_ context.Context, ev domain.NewMessageEvent) error {
	h.news = append(h.news, ev)
	if h.failNew {
		return assert.AnError
	}

	return nil
}

func (h *recordingHandler) OnEditedMessage(_ context.Context, ev domain.EditedMessageEvent) error {
	h.edits = append(h.edits, ev)

	return nil
}

func (h *recordingHandler) OnReactionDelta(_ context.Context, ev domain.ReactionDeltaEvent) error {
	h.deltas = append(h.deltas, ev)

	return nil
}

func (h *recordingHandler) OnReactionTotal(_ context.Context, ev domain.ReactionTotalEvent) error {
	h.totals = append(h.totals, ev)

	return nil
}

const updatesReply = `{"ok":true,"result":[
 {"update_id":10,"message":{"message_id":201,"message_thread_id":77,"is_topic_message":true,
   "from":{"id":5,"is_bot":false,"first_name":"Ann","username":"ann"},"chat":{"id":-100},"date":1700000000,
   "text":"hello","reply_to_message":{"message_id":77,"chat":{"id":-100},"date":1}}},
 {"update_id":11,"message":{"message_id":202,"message_thread_id":77,"is_topic_message":true,
   "from":{"id":6,"is_bot":true,"first_name":"Bot"},"chat":{"id":-100},"date":1700000001,
   "caption":"photo caption","reply_to_message":{"message_id":201,"chat":{"id":-100},"date":1}}},
 {"update_id":12,"edited_message":{"message_id":201,"message_thread_id":77,"is_topic_message":true,
   "from":{"id":5,"is_bot":false,"first_name":"Ann"},"chat":{"id":-100},"date":1700000000,"edit_date":1700000100,"text":"hello!"}},
 {"update_id":13,"message_reaction":{"chat":{"id":-100},"message_id":201,"date":1,
   "old_reaction":[],"new_reaction":[{"type":"emoji","emoji":"👍"},{"type":"emoji","emoji":"🔥"}]}},
 {"update_id":14,"message_reaction_count":{"chat":{"id":-100},"message_id":201,"date":1,
   "reactions":[{"type":{"type":"emoji","emoji":"👍"},"total_count":3},{"type":{"type":"emoji","emoji":"🔥"},"total_count":2}]}},
 {"update_id":15,"channel_post":{"message_id":1,"chat":{"id":-5},"date":1}}
]}`

func TestPollerDispatchesEvents(t *testing.T) {
	fake, srv := newFakeBotServer(t, map[string]string{"getMe": getMeReply, "getUpdates": updatesReply})

	api, err := NewBotAPI("TOKEN", srv.URL+"/bot%s/%s", time.Second)
	require.NoError(t, err)

	logger := zerolog.Nop()
	h := &recordingHandler{failNew: true}
	p := NewPoller(api, h, time.Second, &logger)

	require.NoError(t, p.PollOnce(context.Background()))

	require.Len(t, h.news, 2)
	assert.Equal(t, domain.NewMessageEvent{
		ChatID:     -100,
		MessageID:  201,
		ThreadID:   77,
		SenderID:   5,
		SenderName: "@ann",
		Text:       "hello",
		Date:       time.Unix(1700000000, 0).UTC(),
	}, h.news[0])
	assert.True(t, h.news[1].SenderIsBot)
	assert.Equal(t, "photo caption", h.news[1].Text)
	assert.Equal(t, int64(201), h.news[1].ReplyToMessageID)

	require.Len(t, h.edits, 1)
	assert.Equal(t, "hello!", h.edits[0].Text)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), h.edits[0].EditDate)

	require.Len(t, h.deltas, 1)
	assert.Equal(t, 2, h.deltas[0].Delta())

	require.Len(t, h.totals, 1)
	assert.Equal(t, 5, h.totals[0].Total)

	assert.Equal(t, 16, p.offset)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)

	var allowed []string
	require.NoError(t, json.Unmarshal([]byte(reqs[0].form.Get("allowed_updates")), &allowed))
	assert.Contains(t, allowed, "message_reaction_count")
	assert.Empty(t, reqs[0].form.Get("offset"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@ann", (&rawUser{Username: "ann", FirstName: "Ann"}).displayName())
	assert.Equal(t, "Ann Lee", (&rawUser{FirstName: "Ann", LastName: "Lee"}).displayName())
	assert.Equal(t, "Ann", strings.TrimSpace((&rawUser{FirstName: "Ann"}).displayName()))
}
