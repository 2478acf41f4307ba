package mocks

import (
	"context"
	"hash/fnv"
	"sync"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

const embedderDimensions = 8

// Embedder returns deterministic vectors derived from the input text.
type Embedder struct {
	mu    sync.Mutex
	calls int

	// Unavailable makes every call fail with ErrUnavailable.
	Unavailable bool

	// VectorFn allows overriding the produced vector.
	VectorFn func(text string) []float32
}

var _ ports.Embedder = (*Embedder)(nil)

// GetEmbedding implements ports.Embedder.
func (e *Embedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	unavailable := e.Unavailable
	fn := e.VectorFn
	e.mu.Unlock()

	if unavailable {
		return nil, coreerrors.ErrUnavailable
	}

	if fn != nil {
		return fn(text), nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, embedderDimensions)
	for i := range vec {
		vec[i] = float32((seed>>(i*8))&0xff) / 255
	}

	return vec, nil
}

// Calls returns the number of GetEmbedding invocations.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

// Summarizer is a deterministic ports.Summarizer.
type Summarizer struct{}

var _ ports.Summarizer = Summarizer{}

// Title returns the body up to its first newline.
func (Summarizer) Title(_ context.Context, body string) string {
	for i, r := range body {
		if r == '\n' {
			return body[:i]
		}
	}

	return body
}

// Summary returns the answer unchanged.
func (Summarizer) Summary(_ context.Context, answer string) string {
	return answer
}
