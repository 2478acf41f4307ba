// Package similarity maintains question embeddings and a process-local cache
// of similar question ids.
//
// Similar lists come from pgvector nearest neighbours when an embedding exists,
// otherwise from questions sharing a module. The cache distinguishes "never
// computed" from "computed empty" and is refreshed per question after edits;
// entries naming a changed question as a neighbour are left as they are.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/platform/observability"
	"github.com/lueurxax/question-forum/internal/platform/worker"
)

const (
	DefaultLimit = 5

	defaultEmbedTimeout = 20 * time.Second

	sourceEmbedding = "embedding"
	sourceModules   = "modules"

	logKeyQuestionID = "question_id"
)

// Store is the persistence the index reads and writes.
type Store interface {
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	ListQuestionIDs(ctx context.Context) ([]int64, error)
	GetAnswer(ctx context.Context, questionID int64) (*domain.Answer, error)
	ports.EmbeddingRepository
}

// Index is safe for concurrent use.
type Index struct {
	store        Store
	embedder     ports.Embedder
	limit        int
	embedTimeout time.Duration
	logger       *zerolog.Logger
	tasks        *worker.Group

	mu    sync.Mutex
	cache map[int64][]int64
}

// Options tunes an Index.
type Options struct {
	Limit        int
	EmbedTimeout time.Duration
}

// New creates an empty index. Call Close to stop background work.
func New(store Store, embedder ports.Embedder, opts Options, logger *zerolog.Logger) *Index {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaultEmbedTimeout
	}

	return &Index{
		store:        store,
		embedder:     embedder,
		limit:        opts.Limit,
		embedTimeout: opts.EmbedTimeout,
		logger:       logger,
		tasks:        worker.NewGroup(logger),
		cache:        make(map[int64][]int64),
	}
}

// Cached returns the cached list and whether one was ever computed.
func (ix *Index) Cached(questionID int64) ([]int64, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids, ok := ix.cache[questionID]
	if !ok {
		return nil, false
	}

	return append([]int64{}, ids...), true
}

func (ix *Index) put(questionID int64, ids []int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.cache[questionID] = append([]int64{}, ids...)
	observability.SimilarityCacheSize.Set(float64(len(ix.cache)))
}

// EnsureEmbedding embeds the question when its source text changed.
// It reports whether a new vector was stored. Embedder failures are logged and
// reported as false; only storage errors are returned.
func (ix *Index) EnsureEmbedding(ctx context.Context, q *domain.Question) (bool, error) {
	answer, err := ix.store.GetAnswer(ctx, q.ID)
	if err != nil {
		return false, fmt.Errorf("load answer: %w", err)
	}

	var summary string
	if answer != nil {
		summary = answer.Summary
	}

	source := BuildSourceText(q, summary)

	existing, err := ix.store.GetEmbedding(ctx, q.ID)
	if err != nil {
		return false, fmt.Errorf("load embedding: %w", err)
	}

	if existing != nil && existing.SourceText == source {
		return false, nil
	}

	var vec []float32

	err = worker.RunWithTimeout(ctx, ix.embedTimeout, func(ctx context.Context) error {
		var embedErr error
		vec, embedErr = ix.embedder.GetEmbedding(ctx, source)

		return embedErr
	})
	if err != nil {
		event := ix.logger.Warn()
		if errors.Is(err, coreerrors.ErrUnavailable) {
			event = ix.logger.Debug()
		}

		event.Err(err).Int64(logKeyQuestionID, q.ID).Msg("embedding unavailable, keeping previous vector")

		return false, nil
	}

	if err := ix.store.SaveEmbedding(ctx, domain.Embedding{QuestionID: q.ID, Vector: vec, SourceText: source}); err != nil {
		return false, fmt.Errorf("save embedding: %w", err)
	}

	return true, nil
}

// ComputeSimilar returns up to limit similar ids without touching the cache.
// Nearest neighbours are used when an embedding exists and yields rows;
// otherwise questions sharing a module are returned.
// A question without an embedding is embedded first.
func (ix *Index) ComputeSimilar(ctx context.Context, q *domain.Question) ([]int64, error) {
	return ix.computeSimilar(ctx, q, true)
}

func (ix *Index) computeSimilar(ctx context.Context, q *domain.Question, embedMissing bool) ([]int64, error) {
	emb, err := ix.store.GetEmbedding(ctx, q.ID)
	if err != nil {
		ix.logger.Warn().Err(err).Int64(logKeyQuestionID, q.ID).Msg("failed to load embedding")
	}

	if emb == nil && err == nil && embedMissing {
		if _, ensureErr := ix.EnsureEmbedding(ctx, q); ensureErr != nil {
			ix.logger.Warn().Err(ensureErr).Int64(logKeyQuestionID, q.ID).Msg("failed to create embedding")
		}

		emb, _ = ix.store.GetEmbedding(ctx, q.ID)
	}

	if emb != nil {
		ids, nnErr := ix.store.NearestQuestions(ctx, q.ID, ix.limit)
		if nnErr != nil {
			ix.logger.Warn().Err(nnErr).Int64(logKeyQuestionID, q.ID).Msg("nearest neighbour query failed, using modules")
		} else if len(ids) > 0 {
			observability.SimilarityComputations.WithLabelValues(sourceEmbedding).Inc()

			return ids, nil
		}
	}

	ids, err := ix.store.QuestionsSharingModules(ctx, q.ID, ix.limit)
	if err != nil {
		return nil, fmt.Errorf("questions sharing modules: %w", err)
	}

	observability.SimilarityComputations.WithLabelValues(sourceModules).Inc()

	if ids == nil {
		ids = []int64{}
	}

	return ids, nil
}

// Similar returns the cached list, computing and caching it on a miss.
func (ix *Index) Similar(ctx context.Context, questionID int64) ([]int64, error) {
	if ids, ok := ix.Cached(questionID); ok {
		return ids, nil
	}

	q, err := ix.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	ids, err := ix.ComputeSimilar(ctx, q)
	if err != nil {
		return nil, err
	}

	ix.put(questionID, ids)

	return ids, nil
}

// Refresh re-embeds the question if needed and replaces its cache entry.
func (ix *Index) Refresh(ctx context.Context, questionID int64) error {
	q, err := ix.store.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}

	if _, err := ix.EnsureEmbedding(ctx, q); err != nil {
		ix.logger.Warn().Err(err).Int64(logKeyQuestionID, questionID).Msg("embedding refresh failed")
	}

	ids, err := ix.computeSimilar(ctx, q, false)
	if err != nil {
		return err
	}

	ix.put(questionID, ids)

	return nil
}

// RefreshAsync schedules Refresh without blocking the caller.
func (ix *Index) RefreshAsync(questionID int64) {
	ix.tasks.Go("similarity refresh", func(ctx context.Context) error {
		if err := ix.Refresh(ctx, questionID); err != nil {
			return fmt.Errorf("question %d: %w", questionID, err)
		}

		return nil
	})
}

// Warmup fills missing cache entries for every question. A failing question
// is logged and skipped.
func (ix *Index) Warmup(ctx context.Context) error {
	start := time.Now()

	ids, err := ix.store.ListQuestionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}

	ix.logger.Info().Int("questions", len(ids)).Msg("similarity warmup started")

	var computed, failed int

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, ok := ix.Cached(id); ok {
			continue
		}

		if _, err := ix.Similar(ctx, id); err != nil {
			failed++

			ix.logger.Warn().Err(err).Int64(logKeyQuestionID, id).Msg("similarity warmup failed for question")

			continue
		}

		computed++
	}

	ix.logger.Info().
		Int("computed", computed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("similarity warmup finished")

	return nil
}

// WarmupAsync runs Warmup in the background.
func (ix *Index) WarmupAsync() {
	ix.tasks.Go("similarity warmup", ix.Warmup)
}

// Wait blocks until scheduled background work finishes.
func (ix *Index) Wait() {
	ix.tasks.Wait()
}

// Close cancels background work and waits for it.
func (ix *Index) Close() {
	ix.tasks.Close()
}
