package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	cohereEndpoint           = "https://api.cohere.ai/v1/embed"
	ModelEmbedMultilingualV3 = "embed-multilingual-v3.0"
	cohereDefaultTimeout     = 30 * time.Second
	contentTypeJSON          = "application/json"
)

// ErrCohereAPIFailure wraps non-200 responses from Cohere.
var ErrCohereAPIFailure = errors.New("cohere API error")

// CohereProvider calls the Cohere embed endpoint over plain HTTP.
type CohereProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type cohereRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message"`
}

// NewCohereProvider creates a Cohere provider from cfg.
func NewCohereProvider(cfg Config) *CohereProvider {
	cfg = cfg.withDefaults()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = cohereDefaultTimeout
	}

	return &CohereProvider{
		apiKey:     cfg.CohereAPIKey,
		endpoint:   cohereEndpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), defaultRateLimiterBurst),
	}
}

func (p *CohereProvider) Name() ProviderName { return ProviderCohere }

func (p *CohereProvider) Model() string { return ModelEmbedMultilingualV3 }

// Embed posts the text as a search document.
func (p *CohereProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(cohereRequest{
		Texts:     []string{text},
		Model:     ModelEmbedMultilingualV3,
		InputType: "search_document",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded cohereResponse
	if jsonErr := json.Unmarshal(body, &decoded); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK {
		if decoded.Message != "" {
			return nil, fmt.Errorf("%w (%d): %s", ErrCohereAPIFailure, resp.StatusCode, decoded.Message)
		}

		return nil, fmt.Errorf("%w: status %d", ErrCohereAPIFailure, resp.StatusCode)
	}

	if len(decoded.Embeddings) == 0 {
		return nil, nil
	}

	return decoded.Embeddings[0], nil
}
