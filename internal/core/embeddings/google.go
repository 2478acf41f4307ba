package embeddings

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ModelGeminiEmbedding001 is the Google embedding model.
const ModelGeminiEmbedding001 = "gemini-embedding-001"

// GoogleProvider calls Gemini embeddings through the genai client.
type GoogleProvider struct {
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGoogleProvider dials the genai client.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	cfg = cfg.withDefaults()

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &GoogleProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), defaultRateLimiterBurst),
	}, nil
}

func (p *GoogleProvider) Name() ProviderName { return ProviderGoogle }

func (p *GoogleProvider) Model() string { return ModelGeminiEmbedding001 }

func (p *GoogleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.EmbeddingModel(ModelGeminiEmbedding001).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("google embeddings: %w", err)
	}

	if resp == nil || resp.Embedding == nil {
		return nil, nil
	}

	return resp.Embedding.Values, nil
}

// Close releases the genai client.
func (p *GoogleProvider) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing google embedding client: %w", err)
	}

	return nil
}
