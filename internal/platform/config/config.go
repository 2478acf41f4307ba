// Package config loads the application configuration from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Auto-publish selection policies.
const (
	PublishPolicyVotes  = "votes"
	PublishPolicyOldest = "oldest"
)

// EmbeddingColumnDimensions is the width of question_embeddings.embedding.
const EmbeddingColumnDimensions = 1536

// Environment names.
const (
	EnvLocal = "local"
)

var (
	errNonPositiveInterval = errors.New("interval must be positive")
	errUnknownPolicy       = errors.New("unknown auto-publish policy")
	errNonPositiveLimit    = errors.New("limit must be positive")
	errDimensionMismatch   = errors.New("must match the embedding column width")
)

type Config struct {
	AppEnv      string  `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string  `env:"POSTGRES_DSN,required"`
	BotToken    string  `env:"BOT_TOKEN,required"`
	ForumChatID int64   `env:"FORUM_CHAT_ID,required"`
	AdminIDs    []int64 `env:"ADMIN_IDS" envSeparator:","`
	HTTPPort    int     `env:"HTTP_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Telegram Bot API transport
	TelegramTimeout      time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"15s"`
	TelegramRPS          int           `env:"TELEGRAM_RPS" envDefault:"5"`
	TelegramPollTimeout  time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30s"`
	TelegramMessageLimit int           `env:"TELEGRAM_MESSAGE_LIMIT" envDefault:"4096"`

	// Lifecycle and sweepers
	DiscussionGracePeriod time.Duration `env:"DISCUSSION_GRACE_PERIOD" envDefault:"168h"`
	AutoCloseInterval     time.Duration `env:"AUTO_CLOSE_INTERVAL" envDefault:"1h"`
	AutoPublishEnabled    bool          `env:"AUTO_PUBLISH_ENABLED" envDefault:"true"`
	AutoPublishInterval   time.Duration `env:"AUTO_PUBLISH_INTERVAL" envDefault:"3h"`
	AutoPublishPolicy     string        `env:"AUTO_PUBLISH_POLICY" envDefault:"votes"`

	// Similarity
	SimilarLimit     int  `env:"SIMILAR_LIMIT" envDefault:"5"`
	SimilarityWarmup bool `env:"SIMILARITY_WARMUP" envDefault:"true"`

	// Embedding providers
	OpenAIAPIKey           string        `env:"OPENAI_API_KEY"`
	EmbeddingModel         string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions    int           `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	EmbeddingTimeout       time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"20s"`
	EmbeddingRPS           int           `env:"EMBEDDING_RPS" envDefault:"2"`
	EmbeddingProviderOrder string        `env:"EMBEDDING_PROVIDER_ORDER" envDefault:"openai,cohere,google"`
	CohereAPIKey           string        `env:"COHERE_API_KEY"`
	GoogleAPIKey           string        `env:"GOOGLE_API_KEY"`

	// Title and summary generation
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"10s"`

	// MTProto history import
	TGAPIID       int    `env:"TG_API_ID"`
	TGAPIHash     string `env:"TG_API_HASH"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the background loops cannot run with.
func (c *Config) Validate() error {
	intervals := map[string]time.Duration{
		"DISCUSSION_GRACE_PERIOD": c.DiscussionGracePeriod,
		"AUTO_CLOSE_INTERVAL":     c.AutoCloseInterval,
		"AUTO_PUBLISH_INTERVAL":   c.AutoPublishInterval,
		"TELEGRAM_TIMEOUT":        c.TelegramTimeout,
		"EMBEDDING_TIMEOUT":       c.EmbeddingTimeout,
	}

	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, errNonPositiveInterval)
		}
	}

	if c.AutoPublishPolicy != PublishPolicyVotes && c.AutoPublishPolicy != PublishPolicyOldest {
		return fmt.Errorf("%w: %q", errUnknownPolicy, c.AutoPublishPolicy)
	}

	if c.SimilarLimit <= 0 {
		return fmt.Errorf("SIMILAR_LIMIT: %w", errNonPositiveLimit)
	}

	if c.TelegramMessageLimit <= 0 {
		return fmt.Errorf("TELEGRAM_MESSAGE_LIMIT: %w", errNonPositiveLimit)
	}

	if c.EmbeddingDimensions != EmbeddingColumnDimensions {
		return fmt.Errorf("EMBEDDING_DIMENSIONS %d %w (%d)", c.EmbeddingDimensions, errDimensionMismatch, EmbeddingColumnDimensions)
	}

	return nil
}

// IsAdmin reports whether the user id is listed in ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminIDs, userID)
}

// HistoryImportConfigured reports whether MTProto credentials are present.
func (c *Config) HistoryImportConfigured() bool {
	return c.TGAPIID != 0 && c.TGAPIHash != ""
}
