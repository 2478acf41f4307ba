package similarity

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
)

func newFixture(t *testing.T, embedder *mocks.Embedder) (*Index, *mocks.Store) {
	t.Helper()

	store := mocks.NewStore()
	store.AddModule(domain.Module{ID: 1, Title: "Breathing"})
	store.AddModule(domain.Module{ID: 2, Title: "Diet"})

	logger := zerolog.Nop()
	ix := New(store, embedder, Options{Limit: 5}, &logger)
	t.Cleanup(ix.Close)

	return ix, store
}

func createQuestion(t *testing.T, store *mocks.Store, title, body string, modules ...int64) *domain.Question {
	t.Helper()

	refs := make([]domain.ModuleRef, 0, len(modules))
	for _, id := range modules {
		refs = append(refs, domain.ModuleRef{ModuleID: id})
	}

	q, err := store.CreateQuestion(context.Background(), ports.QuestionDraft{Title: title, Body: body, Modules: refs})
	require.NoError(t, err)

	return q
}

func TestBuildSourceText(t *testing.T) {
	q := &domain.Question{
		Title: "Cold showers",
		Body:  "Are they safe?",
		Modules: []domain.Module{
			{Title: "Breathing practice", ShortTitle: "Breathing"},
			{Title: "Diet"},
		},
	}

	want := "Modules: Breathing; Diet\n" +
		"Title: Cold showers\n" +
		"Title: Cold showers\n" +
		"Text: Are they safe?\n" +
		"Answer: Yes, in moderation."
	assert.Equal(t, want, BuildSourceText(q, "Yes, in moderation."))

	bare := &domain.Question{Body: "Only body"}
	assert.Equal(t, "Text: Only body", BuildSourceText(bare, "  "))
}

func TestBuildSourceTextNormalizes(t *testing.T) {
	composed := &domain.Question{Body: "caf\u00e9"}
	decomposed := &domain.Question{Body: "cafe\u0301"}

	assert.Equal(t, BuildSourceText(composed, ""), BuildSourceText(decomposed, ""))
}

func TestSimilarFallsBackToModulesWithoutProvider(t *testing.T) {
	embedder := &mocks.Embedder{Unavailable: true}
	ix, store := newFixture(t, embedder)

	q := createQuestion(t, store, "", "first", 1)
	sameModule := createQuestion(t, store, "", "second", 1, 2)
	createQuestion(t, store, "", "unrelated", 2)

	ids, err := ix.Similar(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{sameModule.ID}, ids)
	assert.Equal(t, 1, embedder.Calls())

	emb, err := store.GetEmbedding(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

func TestSimilarUsesNearestNeighbours(t *testing.T) {
	vectors := map[string][]float32{
		"Text: apples":  {1, 0, 0},
		"Text: pears":   {0.9, 0.1, 0},
		"Text: engines": {0, 0, 1},
	}
	embedder := &mocks.Embedder{VectorFn: func(text string) []float32 { return vectors[text] }}
	ix, store := newFixture(t, embedder)

	apples := createQuestion(t, store, "", "apples")
	pears := createQuestion(t, store, "", "pears")
	engines := createQuestion(t, store, "", "engines")

	ctx := context.Background()
	for _, q := range []*domain.Question{pears, engines} {
		_, err := ix.EnsureEmbedding(ctx, q)
		require.NoError(t, err)
	}

	ids, err := ix.Similar(ctx, apples.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{pears.ID, engines.ID}, ids)
}

func TestNearestNeighbourFailureFallsBack(t *testing.T) {
	ix, store := newFixture(t, &mocks.Embedder{})
	store.NearestQuestionsFn = func(context.Context, int64, int) ([]int64, error) {
		return nil, mocks.ErrInjected
	}

	q := createQuestion(t, store, "", "first", 2)
	other := createQuestion(t, store, "", "second", 2)

	ids, err := ix.Similar(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, ids)
}

func TestEnsureEmbeddingSkipsUnchangedSource(t *testing.T) {
	embedder := &mocks.Embedder{}
	ix, store := newFixture(t, embedder)
	q := createQuestion(t, store, "Title", "body", 1)

	ctx := context.Background()

	updated, err := ix.EnsureEmbedding(ctx, q)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = ix.EnsureEmbedding(ctx, q)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, 1, embedder.Calls())

	require.NoError(t, store.UpsertAnswer(ctx, domain.Answer{QuestionID: q.ID, Text: "answer", Summary: "short"}))

	updated, err = ix.EnsureEmbedding(ctx, q)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 2, embedder.Calls())
}

func TestCacheDistinguishesEmptyFromMissing(t *testing.T) {
	embedder := &mocks.Embedder{Unavailable: true}
	ix, store := newFixture(t, embedder)
	lonely := createQuestion(t, store, "", "nobody shares my modules")

	_, ok := ix.Cached(lonely.ID)
	assert.False(t, ok)

	ids, err := ix.Similar(context.Background(), lonely.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	cached, ok := ix.Cached(lonely.ID)
	assert.True(t, ok)
	assert.Empty(t, cached)

	_, err = ix.Similar(context.Background(), lonely.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.Calls())
}

func TestRefreshAsyncReplacesEntry(t *testing.T) {
	ix, store := newFixture(t, &mocks.Embedder{Unavailable: true})
	q := createQuestion(t, store, "", "first", 1)

	ids, err := ix.Similar(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	other := createQuestion(t, store, "", "second", 1)

	ix.RefreshAsync(q.ID)
	ix.Wait()

	cached, ok := ix.Cached(q.ID)
	require.True(t, ok)
	assert.Equal(t, []int64{other.ID}, cached)
}

func TestWarmupFillsMissingEntries(t *testing.T) {
	ix, store := newFixture(t, &mocks.Embedder{Unavailable: true})
	a := createQuestion(t, store, "", "a", 1)
	b := createQuestion(t, store, "", "b", 1)

	ix.WarmupAsync()
	ix.Wait()

	for _, id := range []int64{a.ID, b.ID} {
		_, ok := ix.Cached(id)
		assert.True(t, ok, "question %d", id)
	}
}

func TestSimilarUnknownQuestion(t *testing.T) {
	ix, _ := newFixture(t, &mocks.Embedder{})

	_, err := ix.Similar(context.Background(), 404)
	require.Error(t, err)
}
