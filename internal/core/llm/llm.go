// Package llm generates question titles and answer summaries.
//
// Completers are tried in order (OpenAI chat, then Anthropic). When none is
// configured or every call fails, a deterministic text heuristic is used, so
// the Summarizer never returns an error.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/platform/observability"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
)

const (
	TitleMaxRunes   = 60
	SummaryMaxRunes = 300

	summarySentences  = 2
	titleInputRunes   = 500
	summaryInputRunes = 1000
	titleMaxTokens    = 30
	summaryMaxTokens  = 100
	defaultTimeout    = 10 * time.Second

	taskTitle   = "title"
	taskSummary = "summary"

	logKeyProvider = "provider"
)

// Completer is a single-prompt chat completion backend.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// Config selects completers.
type Config struct {
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	Timeout         time.Duration
	RequestsPerSec  float64
}

// Summarizer implements ports.Summarizer.
type Summarizer struct {
	completers []Completer
	timeout    time.Duration
	logger     *zerolog.Logger
}

// New builds a Summarizer with every completer that has an API key.
func New(cfg Config, logger *zerolog.Logger) *Summarizer {
	var completers []Completer

	if cfg.OpenAIAPIKey != "" {
		completers = append(completers, newOpenAICompleter(cfg))
	}

	if cfg.AnthropicAPIKey != "" {
		completers = append(completers, newAnthropicCompleter(cfg))
	}

	if len(completers) == 0 {
		logger.Info().Msg("no LLM configured, titles and summaries use first sentences")
	}

	return NewWithCompleters(cfg.Timeout, logger, completers...)
}

// NewWithCompleters builds a Summarizer over explicit completers.
func NewWithCompleters(timeout time.Duration, logger *zerolog.Logger, completers ...Completer) *Summarizer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Summarizer{completers: completers, timeout: timeout, logger: logger}
}

// Title returns a short title for a question body, at most TitleMaxRunes runes.
func (s *Summarizer) Title(ctx context.Context, body string) string {
	prompt := "Write a short title (at most 5 words) for this question:\n\n" + textutil.Truncate(body, titleInputRunes)

	if out := s.complete(ctx, taskTitle, titleSystemPrompt, prompt, titleMaxTokens); out != "" {
		return textutil.Truncate(out, TitleMaxRunes)
	}

	return textutil.FirstSentence(body, TitleMaxRunes)
}

// Summary condenses an answer into at most SummaryMaxRunes runes.
func (s *Summarizer) Summary(ctx context.Context, answer string) string {
	prompt := "Summarize this answer in 1-3 sentences, up to 300 characters:\n\n" + textutil.Truncate(answer, summaryInputRunes)

	if out := s.complete(ctx, taskSummary, summarySystemPrompt, prompt, summaryMaxTokens); out != "" {
		return textutil.Truncate(out, SummaryMaxRunes)
	}

	return textutil.FirstSentences(answer, summarySentences, SummaryMaxRunes)
}

func (s *Summarizer) complete(ctx context.Context, task, system, prompt string, maxTokens int) string {
	for _, c := range s.completers {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		out, err := c.Complete(callCtx, system, prompt, maxTokens)
		cancel()

		observability.LLMRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

		out = cleanOutput(out)
		if err == nil && out != "" {
			observability.SummarizerRequests.WithLabelValues(c.Name(), task, "success").Inc()

			return out
		}

		observability.SummarizerRequests.WithLabelValues(c.Name(), task, "error").Inc()
		s.logger.Warn().Err(err).Str(logKeyProvider, c.Name()).Str("task", task).Msg("LLM completion failed, trying next")
	}

	return ""
}

// cleanOutput strips whitespace and wrapping quotes models like to add.
func cleanOutput(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}
