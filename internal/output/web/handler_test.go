package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
	"github.com/lueurxax/question-forum/internal/output/catalog"
	"github.com/lueurxax/question-forum/internal/process/discussion"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

const (
	adminID  = 1
	memberID = 7
	chatID   = -1001234567890
)

type staticSimilar map[int64][]int64

func (s staticSimilar) Similar(_ context.Context, id int64) ([]int64, error) {
	if ids, ok := s[id]; ok {
		return ids, nil
	}

	return []int64{}, nil
}

type fixture struct {
	handler   *Handler
	store     *mocks.Store
	messenger *mocks.Messenger
	ingestor  *discussion.Ingestor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := mocks.NewStore()
	store.AddModule(domain.Module{ID: 1, Title: "Fasting", Icon: "🍵"})

	messenger := mocks.NewMessenger()
	logger := zerolog.Nop()

	engine := lifecycle.New(store, messenger, mocks.Summarizer{}, nil, lifecycle.Config{ChatID: chatID}, &logger)
	ingestor := discussion.NewIngestor(store, &logger)
	similar := staticSimilar{1: {2}}

	isAdmin := func(id int64) bool { return id == adminID }

	return &fixture{
		handler:   NewHandler(engine, catalog.New(store, similar), similar, ingestor, isAdmin, &logger),
		store:     store,
		messenger: messenger,
		ingestor:  ingestor,
	}
}

func (f *fixture) do(t *testing.T, method, path string, userID int64, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}

	if userID != 0 {
		req.Header.Set(headerUserID, strconv.FormatInt(userID, 10))
		req.Header.Set(headerUserName, "Admin Anna")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func (f *fixture) create(t *testing.T, body string) int64 {
	t.Helper()

	q, err := f.store.CreateQuestion(context.Background(), ports.QuestionDraft{Title: body, Body: body})
	require.NoError(t, err)

	return q.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

func TestVoteAndList(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "first")
	second := f.create(t, "second")

	rec := f.do(t, http.MethodPost, "/api/questions/2/vote", memberID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"voted":true,"votes_count":1}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/questions", memberID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	items := decode[[]catalog.Item](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].ID)
	assert.True(t, items[0].MyVote)
	assert.Equal(t, first, items[1].ID)
	assert.False(t, items[1].MyVote)

	rec = f.do(t, http.MethodPost, "/api/questions/2/vote", memberID, "")
	assert.JSONEq(t, `{"voted":false,"votes_count":0}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/questions/2/vote", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/questions/99/vote", memberID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQueryValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "defaults", query: "", want: http.StatusOK},
		{name: "module and period", query: "?module=1&period=week&status=voting", want: http.StatusOK},
		{name: "bad module", query: "?module=abc", want: http.StatusBadRequest},
		{name: "bad period", query: "?period=decade", want: http.StatusBadRequest},
		{name: "bad status", query: "?status=draft", want: http.StatusBadRequest},
	}

	f := newFixture(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/questions"+tt.query, 0, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name   string
		userID int64
		body   string
		want   int
	}{
		{name: "anonymous", body: `{"body":"Why?"}`, want: http.StatusUnauthorized},
		{name: "not an admin", userID: memberID, body: `{"body":"Why?"}`, want: http.StatusForbidden},
		{name: "empty request", userID: adminID, want: http.StatusBadRequest},
		{name: "blank body", userID: adminID, body: `{"body":"   "}`, want: http.StatusBadRequest},
		{name: "malformed", userID: adminID, body: `{"body":`, want: http.StatusBadRequest},
		{name: "unknown field", userID: adminID, body: `{"body":"Why?","votes":3}`, want: http.StatusBadRequest},
		{name: "unknown module", userID: adminID, body: `{"body":"Why?","modules":[{"id":42}]}`, want: http.StatusBadRequest},
		{name: "unknown status", userID: adminID, body: `{"body":"Why?","status":"DRAFT"}`, want: http.StatusBadRequest},
		{name: "posted status", userID: adminID, body: `{"body":"Why?","status":"POSTED"}`, want: http.StatusConflict},
		{name: "scheduled", userID: adminID, body: `{"body":"Why?","status":"scheduled"}`, want: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/api/questions", tt.userID, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateReturnsDetail(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/questions", adminID, `{
		"body": "Why do we fast?\nLonger explanation",
		"modules": [{"id": 1, "is_primary": true}],
		"answer": {"text": "Because.", "sources": [{"title": "Lecture 3", "url": "https://example.org/3"}]}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	detail := decode[catalog.Detail](t, rec)
	assert.Equal(t, "Why do we fast?", detail.Title)
	assert.Equal(t, "VOTING", detail.Status)
	assert.Equal(t, "Because.", detail.AnswerSummary)
	assert.Equal(t, []domain.AnswerSource{{Title: "Lecture 3", URL: "https://example.org/3"}}, detail.Sources)
	assert.Equal(t, []catalog.ModuleView{{ID: 1, Title: "Fasting", IsPrimary: true}}, detail.Modules)

	q, err := f.store.GetQuestion(context.Background(), detail.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(adminID), q.AuthorID)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "draft")

	rec := f.do(t, http.MethodPut, "/api/questions/1", adminID, `{"title":"Final","body":"Final body","status":"SCHEDULED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	detail := decode[catalog.Detail](t, rec)
	assert.Equal(t, id, detail.ID)
	assert.Equal(t, "Final", detail.Title)
	assert.Equal(t, "SCHEDULED", detail.Status)

	rec = f.do(t, http.MethodPut, "/api/questions/1", adminID, `{"body":"x","status":"ARCHIVED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/questions/1", memberID, `{"body":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/questions/abc", adminID, `{"body":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Why do we fast?")

	rec := f.do(t, http.MethodPost, "/api/questions/1/publish", memberID, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/questions/1/publish", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[reportView](t, rec)
	assert.Equal(t, "publish", report.Transition)
	assert.Equal(t, "https://t.me/c/1234567890/101", report.TopicLink)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, lifecycle.StepOpenTopic, report.Steps[0].Step)

	rec = f.do(t, http.MethodPost, "/api/questions/1/publish", adminID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/questions/1/archive", adminID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/questions/1/close", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, f.messenger.Calls()[len(f.messenger.Calls())-2].Text, "closed by Admin Anna")

	rec = f.do(t, http.MethodPost, "/api/questions/1/archive", adminID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "answer")

	rec = f.do(t, http.MethodPut, "/api/questions/1", adminID, `{"body":"Why do we fast?","answer":{"text":"Tradition."}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/questions/1/archive", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/questions/1", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)

	detail := decode[catalog.Detail](t, rec)
	assert.Equal(t, "ARCHIVED", detail.Status)
	assert.Equal(t, "Tradition.", detail.AnswerText)
	assert.Equal(t, []int64{2}, detail.Similar)
}

func TestPublishStepFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "q")
	f.messenger.Fail("OpenTopic", mocks.ErrInjected)

	rec := f.do(t, http.MethodPost, "/api/questions/1/publish", adminID, "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.NotNil(t, resp.Report)
	require.Len(t, resp.Report.Steps, 1)
	assert.Equal(t, string(lifecycle.OutcomeFatal), resp.Report.Steps[0].Outcome)
	assert.NotEmpty(t, resp.Report.Steps[0].Error)
}

func TestDiscussionSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Why?")

	rec := f.do(t, http.MethodGet, "/api/questions/1/discussion", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)

	rec = f.do(t, http.MethodPost, "/api/questions/1/publish", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.ingestor.OnNewMessage(ctx, domain.NewMessageEvent{
		ChatID: chatID, ThreadID: 101, MessageID: 2001, SenderID: 9, Text: "Because", Date: time.Now(),
	}))

	rec = f.do(t, http.MethodGet, "/api/questions/1/discussion", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[discussion.Snapshot](t, rec)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Because", snap.Messages[0].Text)
	assert.Equal(t, 1, snap.Meta.MessageCount)

	rec = f.do(t, http.MethodGet, "/api/questions/404/discussion", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimilar(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/questions/1/similar", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"question_id":1,"similar":[2]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/questions/3/similar", 0, "")
	assert.JSONEq(t, `{"question_id":3,"similar":[]}`, rec.Body.String())
}

func TestBadUserHeader(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	req.Header.Set(headerUserID, "anna")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)

	var limited bool

	for range rateLimitBurst + 5 {
		rec := f.do(t, http.MethodGet, "/api/questions", 0, "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true

			break
		}
	}

	assert.True(t, limited)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: coreerrors.ErrEmptyBody, want: http.StatusBadRequest},
		{err: coreerrors.ErrUnknownModule, want: http.StatusBadRequest},
		{err: errBadQuestionID, want: http.StatusBadRequest},
		{err: coreerrors.ErrQuestionNotFound, want: http.StatusNotFound},
		{err: errForbidden(5), want: http.StatusForbidden},
		{err: errUnauthenticated, want: http.StatusUnauthorized},
		{err: coreerrors.ErrAlreadyPublished, want: http.StatusConflict},
		{err: coreerrors.ErrTransitionInProgress, want: http.StatusConflict},
		{err: coreerrors.ErrBindingNotFound, want: http.StatusConflict},
		{err: &lifecycle.StepError{Transition: "close", Step: lifecycle.StepCloseTopic, Err: mocks.ErrInjected}, want: http.StatusBadGateway},
		{err: &lifecycle.OrphanedThreadError{QuestionID: 1, Err: mocks.ErrInjected}, want: http.StatusBadGateway},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
