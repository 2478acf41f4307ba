// Package embeddings turns question text into fixed-size vectors.
//
// Providers are tried in configured order (OpenAI, Cohere, Google by default).
// Each provider sits behind its own circuit breaker, and every vector is
// zero-padded or truncated to the configured dimensions so that vectors from
// different providers share the pgvector column.
//
// When no provider is configured or all of them fail, GetEmbedding returns
// errors.ErrUnavailable and callers fall back to module-based similarity.
package embeddings

import (
	"context"
	"time"
)

// ProviderName identifies an embedding provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI ProviderName = "openai"
	ProviderCohere ProviderName = "cohere"
	ProviderGoogle ProviderName = "google"
)

// DefaultDimensions matches the question_embeddings column.
const DefaultDimensions = 1536

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = time.Minute
	defaultRateLimiterBurst = 5
)

// Provider produces raw embedding vectors.
type Provider interface {
	Name() ProviderName
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures providers.
type Config struct {
	OpenAIAPIKey string
	OpenAIModel  string
	CohereAPIKey string
	GoogleAPIKey string

	// ProviderOrder is a comma-separated list, e.g. "openai,cohere,google".
	ProviderOrder string

	Dimensions       int
	RequestsPerSec   float64
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}

	if c.RequestsPerSec <= 0 {
		c.RequestsPerSec = 1
	}

	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}

	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}

	return c
}
