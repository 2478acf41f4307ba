package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

const (
	defaultOpenAIModel = openai.GPT4oMini
	rateLimiterBurst   = 2
)

type openaiCompleter struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

func newOpenAICompleter(cfg Config) *openaiCompleter {
	model := cfg.OpenAIModel
	if model == "" {
		model = defaultOpenAIModel
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}

	return &openaiCompleter{
		client:  openai.NewClient(cfg.OpenAIAPIKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), rateLimiterBurst),
	}
}

func (c *openaiCompleter) Name() string { return "openai" }

func (c *openaiCompleter) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", coreerrors.ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
