// Package telegram is the Bot API transport: forum-topic messaging out,
// raw update polling in.
//
// The pinned bot library predates forum topics and reactions, so every call
// goes through BotAPI.MakeRequest with explicit params and the update payloads
// are decoded by this package.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/question-forum/internal/platform/observability"
)

const (
	rateLimiterBurst = 3
	logKeyMethod     = "method"
)

// NewBotAPI connects to the Bot API at endpoint (tgbotapi.APIEndpoint when empty)
// with a per-request timeout.
func NewBotAPI(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}

	return api, nil
}

// caller serializes Bot API requests through a rate limiter.
type caller struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func newCaller(api *tgbotapi.BotAPI, rps float64, logger *zerolog.Logger) *caller {
	if rps <= 0 {
		rps = 1
	}

	return &caller{api: api, limiter: rate.NewLimiter(rate.Limit(rps), rateLimiterBurst), logger: logger}
}

// call performs one Bot API method. Failures, including flood control, are
// returned to the caller; the next sweep or user action is the retry.
func (c *caller) call(ctx context.Context, method string, params tgbotapi.Params) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", method, err)
	}

	resp, err := c.api.MakeRequest(method, params)
	if err != nil {
		observability.TelegramRequests.WithLabelValues(method, "error").Inc()

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			c.logger.Warn().Str(logKeyMethod, method).Int("retry_after", apiErr.RetryAfter).Msg("telegram flood control")
		}

		return nil, fmt.Errorf("%s: %w", method, err)
	}

	observability.TelegramRequests.WithLabelValues(method, "ok").Inc()

	return resp.Result, nil
}
