package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/platform/observability"
)

const logKeyProvider = "provider"

type entry struct {
	provider Provider
	breaker  *breaker
}

// Registry tries providers in order and normalizes vector size.
type Registry struct {
	entries    []entry
	dimensions int
	threshold  int
	cooldown   time.Duration
	logger     *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger *zerolog.Logger) *Registry {
	cfg = cfg.withDefaults()

	return &Registry{
		dimensions: cfg.Dimensions,
		threshold:  cfg.BreakerThreshold,
		cooldown:   cfg.BreakerCooldown,
		logger:     logger,
	}
}

// New builds a registry with every provider that has credentials, in cfg.ProviderOrder.
func New(ctx context.Context, cfg Config, logger *zerolog.Logger) *Registry {
	cfg = cfg.withDefaults()
	r := NewRegistry(cfg, logger)

	for _, name := range parseOrder(cfg.ProviderOrder) {
		switch name {
		case ProviderOpenAI:
			if cfg.OpenAIAPIKey != "" {
				r.Register(NewOpenAIProvider(cfg))
			}
		case ProviderCohere:
			if cfg.CohereAPIKey != "" {
				r.Register(NewCohereProvider(cfg))
			}
		case ProviderGoogle:
			if cfg.GoogleAPIKey == "" {
				continue
			}

			p, err := NewGoogleProvider(ctx, cfg)
			if err != nil {
				logger.Error().Err(err).Msg("failed to create Google embedding provider")

				continue
			}

			r.Register(p)
		default:
			logger.Warn().Str(logKeyProvider, string(name)).Msg("unknown embedding provider ignored")
		}
	}

	if len(r.entries) == 0 {
		logger.Warn().Msg("no embedding providers configured, similarity will use shared modules")
	}

	return r
}

func parseOrder(order string) []ProviderName {
	if strings.TrimSpace(order) == "" {
		return []ProviderName{ProviderOpenAI, ProviderCohere, ProviderGoogle}
	}

	var names []ProviderName

	for _, part := range strings.Split(order, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			names = append(names, ProviderName(part))
		}
	}

	return names
}

// Register appends a provider after the existing ones.
func (r *Registry) Register(p Provider) {
	r.entries = append(r.entries, entry{provider: p, breaker: newBreaker(r.threshold, r.cooldown)})
	observability.EmbeddingProviderAvailable.WithLabelValues(string(p.Name())).Set(1)

	r.logger.Info().
		Str(logKeyProvider, string(p.Name())).
		Str("model", p.Model()).
		Int("position", len(r.entries)).
		Msg("registered embedding provider")
}

// Providers returns the registered provider names in order.
func (r *Registry) Providers() []ProviderName {
	names := make([]ProviderName, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.provider.Name()
	}

	return names
}

// GetEmbedding returns a vector of the configured dimensions from the first healthy provider.
func (r *Registry) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("embed: %w", coreerrors.ErrUnavailable)
	}

	var errs []error

	primary := string(r.entries[0].provider.Name())

	for _, e := range r.entries {
		name := string(e.provider.Name())
		model := e.provider.Model()

		if !e.breaker.allow() {
			observability.EmbeddingProviderAvailable.WithLabelValues(name).Set(0)
			errs = append(errs, fmt.Errorf("%s: %w", name, coreerrors.ErrCircuitBreakerOpen))

			continue
		}

		start := time.Now()
		vec, err := e.provider.Embed(ctx, text)
		observability.EmbeddingLatency.WithLabelValues(name, model).Observe(time.Since(start).Seconds())

		if err == nil && len(vec) == 0 {
			err = coreerrors.ErrEmptyResponse
		}

		if err != nil {
			observability.EmbeddingRequests.WithLabelValues(name, model, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))

			if e.breaker.failure() {
				r.logger.Warn().Str(logKeyProvider, name).Dur("cooldown", r.cooldown).Msg("embedding circuit breaker opened")
			}

			r.logger.Warn().Err(err).Str(logKeyProvider, name).Msg("embedding provider failed, trying next")

			if ctx.Err() != nil {
				break
			}

			continue
		}

		e.breaker.success()
		observability.EmbeddingRequests.WithLabelValues(name, model, "success").Inc()
		observability.EmbeddingProviderAvailable.WithLabelValues(name).Set(1)

		if name != primary {
			observability.EmbeddingFallbacks.WithLabelValues(primary, name).Inc()
		}

		return fitDimensions(vec, r.dimensions), nil
	}

	return nil, fmt.Errorf("embed: %w", errors.Join(append([]error{coreerrors.ErrUnavailable}, errs...)...))
}

// fitDimensions zero-pads or truncates vec. Zero padding leaves cosine distance unchanged.
func fitDimensions(vec []float32, target int) []float32 {
	switch {
	case len(vec) == target:
		return vec
	case len(vec) > target:
		return vec[:target]
	default:
		padded := make([]float32, target)
		copy(padded, vec)

		return padded
	}
}
