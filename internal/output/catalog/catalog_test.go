package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type staticSimilar map[int64][]int64

func (s staticSimilar) Similar(_ context.Context, id int64) ([]int64, error) {
	return s[id], nil
}

func seed(t *testing.T) (*mocks.Store, map[string]int64) {
	t.Helper()

	store := mocks.NewStore()
	store.AddModule(domain.Module{ID: 1, Title: "Breathing practice", ShortTitle: "Breathing"})
	store.AddModule(domain.Module{ID: 2, Title: "Diet"})

	ctx := context.Background()
	ids := make(map[string]int64)

	add := func(name string, age time.Duration, votes int, modules ...int64) {
		refs := make([]domain.ModuleRef, 0, len(modules))
		for i, m := range modules {
			refs = append(refs, domain.ModuleRef{ModuleID: m, IsPrimary: i == 0})
		}

		q, err := store.CreateQuestion(ctx, ports.QuestionDraft{Title: name, Body: "Body of " + name, Modules: refs})
		require.NoError(t, err)
		store.SetCreatedAt(q.ID, now.Add(-age))

		for v := range votes {
			_, err := store.ToggleVote(ctx, q.ID, int64(100+v))
			require.NoError(t, err)
		}

		ids[name] = q.ID
	}

	add("fresh", 2*24*time.Hour, 1, 1)
	add("popular", 20*24*time.Hour, 3, 1, 2)
	add("old", 200*24*time.Hour, 2, 2)
	add("ancient", 400*24*time.Hour, 0)
	add("tied", 10*24*time.Hour, 1)

	return store, ids
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}

	return out
}

func TestListFilters(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "all ranked", query: Query{}, want: []string{"popular", "old", "fresh", "tied", "ancient"}},
		{name: "week", query: Query{Period: PeriodWeek}, want: []string{"fresh"}},
		{name: "month", query: Query{Period: PeriodMonth}, want: []string{"popular", "fresh", "tied"}},
		{name: "year", query: Query{Period: PeriodYear}, want: []string{"popular", "old", "fresh", "tied"}},
		{name: "module", query: Query{ModuleID: 2}, want: []string{"popular", "old"}},
		{name: "status", query: Query{Status: domain.StatusArchived}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := seed(t)
			c := New(store, nil)
			c.now = func() time.Time { return now }

			items, err := c.List(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(items))
		})
	}
}

func TestListLast30CapsResults(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()

	for i := range 35 {
		_, err := store.CreateQuestion(ctx, ports.QuestionDraft{Body: "q" + strings.Repeat("x", i)})
		require.NoError(t, err)
	}

	items, err := New(store, nil).List(ctx, Query{Period: PeriodLast30})
	require.NoError(t, err)
	assert.Len(t, items, 30)
}

func TestListItemFields(t *testing.T) {
	store, ids := seed(t)
	ctx := context.Background()
	popular := ids["popular"]

	require.NoError(t, store.UpsertAnswer(ctx, domain.Answer{QuestionID: popular, Text: strings.Repeat("a", 350)}))
	_, err := store.MarkPublished(ctx, domain.StatusVoting, domain.DiscussionBinding{
		QuestionID: popular, ChatID: -1001987654321, ThreadID: 15, OpenedAt: now,
	})
	require.NoError(t, err)

	items, err := New(store, nil).List(ctx, Query{ViewerID: 101})
	require.NoError(t, err)

	first := items[0]
	assert.Equal(t, popular, first.ID)
	assert.True(t, first.MyVote)
	assert.Equal(t, "POSTED", first.Status)
	assert.Equal(t, "In discussion", first.StatusLabel)
	assert.Equal(t, "https://t.me/c/1987654321/15", first.TopicLink)
	assert.Equal(t, []ModuleView{{ID: 1, Title: "Breathing", IsPrimary: true}, {ID: 2, Title: "Diet"}}, first.Modules)
	assert.Len(t, []rune(first.AnswerPreview), PreviewRunes+3)
	assert.True(t, strings.HasSuffix(first.AnswerPreview, "..."))

	for _, it := range items {
		if it.ID == ids["ancient"] {
			assert.False(t, it.MyVote)
			assert.Empty(t, it.TopicLink)
			assert.Empty(t, it.AnswerPreview)
			assert.NotNil(t, it.Modules)
		}
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	store, _ := seed(t)

	_, err := New(store, nil).List(context.Background(), Query{Status: "DRAFT"})
	require.ErrorIs(t, err, coreerrors.ErrUnknownStatus)
}

func TestGet(t *testing.T) {
	store, ids := seed(t)
	ctx := context.Background()
	id := ids["old"]

	require.NoError(t, store.UpsertAnswer(ctx, domain.Answer{
		QuestionID: id, Summary: "Short", Text: "Long answer",
		Sources: []domain.AnswerSource{{Title: "Lecture", URL: "https://example.org"}},
	}))

	c := New(store, staticSimilar{id: {ids["popular"]}})

	d, err := c.Get(ctx, id, 100)
	require.NoError(t, err)
	assert.Equal(t, "Body of old", d.Body)
	assert.Equal(t, "Short", d.AnswerSummary)
	assert.Equal(t, "Long answer", d.AnswerText)
	assert.Len(t, d.Sources, 1)
	assert.Equal(t, []int64{ids["popular"]}, d.Similar)
	assert.True(t, d.MyVote)

	d, err = New(store, nil).Get(ctx, ids["ancient"], 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, d.Similar)

	_, err = c.Get(ctx, 404, 0)
	require.ErrorIs(t, err, coreerrors.ErrQuestionNotFound)
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{in: "", want: PeriodAll},
		{in: "all", want: PeriodAll},
		{in: "Week", want: PeriodWeek},
		{in: "last30", want: PeriodLast30},
		{in: "decade", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, coreerrors.ErrInvalidInput)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopicLink(t *testing.T) {
	assert.Equal(t, "https://t.me/c/1234567890/77", TopicLink(-1001234567890, 77))
	assert.Empty(t, TopicLink(-4567, 3))
	assert.Empty(t, TopicLink(12345, 3))
}
