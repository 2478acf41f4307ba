package embeddings

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ModelTextEmbedding3Small is the default OpenAI embedding model.
const ModelTextEmbedding3Small = "text-embedding-3-small"

// OpenAIProvider calls the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewOpenAIProvider creates an OpenAI provider from cfg.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	cfg = cfg.withDefaults()

	model := cfg.OpenAIModel
	if model == "" {
		model = ModelTextEmbedding3Small
	}

	return &OpenAIProvider{
		client:     openai.NewClient(cfg.OpenAIAPIKey),
		model:      model,
		dimensions: cfg.Dimensions,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), defaultRateLimiterBurst),
	}
}

func (p *OpenAIProvider) Name() ProviderName { return ProviderOpenAI }

func (p *OpenAIProvider) Model() string { return p.model }

// Embed requests a single embedding with the configured output size.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, nil
	}

	return resp.Data[0].Embedding, nil
}
