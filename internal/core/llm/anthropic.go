package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	contentTypeText       = "text"
)

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

func newAnthropicCompleter(cfg Config) *anthropicCompleter {
	model := cfg.AnthropicModel
	if model == "" {
		model = defaultAnthropicModel
	}

	return &anthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		model:  model,
	}
}

func (c *anthropicCompleter) Name() string { return "anthropic" }

func (c *anthropicCompleter) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			sb.WriteString(block.Text)
		}
	}

	return sb.String(), nil
}
