// Package app wires the forum services and runs them in one of several modes:
//
//   - server: JSON API next to the health and metrics endpoints
//   - ingest: Bot API update poller feeding discussion messages and reactions
//   - sweeper: periodic auto-close and auto-publish passes
//   - all: the three above in one process
//   - import-history: one-shot MTProto backfill of replies in bound topics
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/question-forum/internal/core/embeddings"
	"github.com/lueurxax/question-forum/internal/core/llm"
	"github.com/lueurxax/question-forum/internal/ingest/history"
	"github.com/lueurxax/question-forum/internal/output/catalog"
	"github.com/lueurxax/question-forum/internal/output/web"
	"github.com/lueurxax/question-forum/internal/platform/config"
	"github.com/lueurxax/question-forum/internal/platform/observability"
	"github.com/lueurxax/question-forum/internal/process/discussion"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
	"github.com/lueurxax/question-forum/internal/process/similarity"
	"github.com/lueurxax/question-forum/internal/process/sweeper"
	"github.com/lueurxax/question-forum/internal/telegram"
	db "github.com/lueurxax/question-forum/internal/storage"
)

const (
	historyPageSize = 100
	logKeyComponent = "component"
)

var errHistoryNotConfigured = errors.New("TG_API_ID and TG_API_HASH are required for history import")

// App holds the shared dependencies of every mode.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates an App.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{cfg: cfg, database: database, logger: logger}
}

// Prepare repairs vote counters left behind by interrupted writes. Call it once
// after migrations.
func (a *App) Prepare(ctx context.Context) error {
	fixed, err := a.database.RecountVotes(ctx)
	if err != nil {
		return fmt.Errorf("recount votes: %w", err)
	}

	if fixed > 0 {
		a.logger.Warn().Int64("questions", fixed).Msg("vote counters repaired")
	}

	return nil
}

// services are the components shared by the long-running modes.
type services struct {
	engine     *lifecycle.Engine
	similarity *similarity.Index
	catalog    *catalog.Catalog
	ingestor   *discussion.Ingestor
}

func (a *App) component(name string) *zerolog.Logger {
	l := a.logger.With().Str(logKeyComponent, name).Logger()

	return &l
}

func (a *App) newServices(ctx context.Context) (*services, error) {
	api, err := telegram.NewBotAPI(a.cfg.BotToken, "", a.cfg.TelegramTimeout)
	if err != nil {
		return nil, err
	}

	messenger := telegram.NewMessenger(api, float64(a.cfg.TelegramRPS), a.cfg.TelegramMessageLimit, a.component("telegram"))

	embedder := embeddings.New(ctx, embeddings.Config{
		OpenAIAPIKey:   a.cfg.OpenAIAPIKey,
		OpenAIModel:    a.cfg.EmbeddingModel,
		CohereAPIKey:   a.cfg.CohereAPIKey,
		GoogleAPIKey:   a.cfg.GoogleAPIKey,
		ProviderOrder:  a.cfg.EmbeddingProviderOrder,
		Dimensions:     a.cfg.EmbeddingDimensions,
		RequestsPerSec: float64(a.cfg.EmbeddingRPS),
		Timeout:        a.cfg.EmbeddingTimeout,
	}, a.component("embeddings"))

	summarizer := llm.New(llm.Config{
		OpenAIAPIKey:    a.cfg.OpenAIAPIKey,
		OpenAIModel:     a.cfg.LLMModel,
		AnthropicAPIKey: a.cfg.AnthropicAPIKey,
		AnthropicModel:  a.cfg.AnthropicModel,
		Timeout:         a.cfg.LLMTimeout,
	}, a.component("llm"))

	index := similarity.New(a.database, embedder, similarity.Options{
		Limit:        a.cfg.SimilarLimit,
		EmbedTimeout: a.cfg.EmbeddingTimeout,
	}, a.component("similarity"))

	engine := lifecycle.New(a.database, messenger, summarizer, index, lifecycle.Config{
		ChatID:       a.cfg.ForumChatID,
		GracePeriod:  a.cfg.DiscussionGracePeriod,
		CallTimeout:  a.cfg.TelegramTimeout,
		MessageLimit: a.cfg.TelegramMessageLimit,
	}, a.component("lifecycle"))

	return &services{
		engine:     engine,
		similarity: index,
		catalog:    catalog.New(a.database, index),
		ingestor:   discussion.NewIngestor(a.database, a.component("discussion")),
	}, nil
}

// RunServer serves the API until ctx is cancelled.
func (a *App) RunServer(ctx context.Context) error {
	svc, err := a.newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.similarity.Close()

	return a.runServer(ctx, svc)
}

func (a *App) runServer(ctx context.Context, svc *services) error {
	a.logger.Info().Msg("Starting server mode")

	if a.cfg.SimilarityWarmup {
		svc.similarity.WarmupAsync()
	}

	api := web.NewHandler(svc.engine, svc.catalog, svc.similarity, svc.ingestor, a.cfg.IsAdmin, a.component("web"))
	srv := observability.NewServer(a.database, a.cfg.HTTPPort, a.logger).WithAPI(api)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

// RunIngest polls chat updates into the discussion store.
func (a *App) RunIngest(ctx context.Context) error {
	svc, err := a.newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.similarity.Close()

	return a.runIngest(ctx, svc)
}

func (a *App) runIngest(ctx context.Context, svc *services) error {
	a.logger.Info().Msg("Starting ingest mode")

	// long polling holds the request open for pollTimeout
	api, err := telegram.NewBotAPI(a.cfg.BotToken, "", a.cfg.TelegramPollTimeout+a.cfg.TelegramTimeout)
	if err != nil {
		return err
	}

	poller := telegram.NewPoller(api, svc.ingestor, a.cfg.TelegramPollTimeout, a.component("poller"))

	if err := poller.Run(ctx); err != nil {
		return fmt.Errorf("poller run: %w", err)
	}

	return nil
}

// RunSweeper runs the periodic auto-close and auto-publish passes.
func (a *App) RunSweeper(ctx context.Context) error {
	svc, err := a.newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.similarity.Close()

	return a.runSweeper(ctx, svc)
}

func (a *App) runSweeper(ctx context.Context, svc *services) error {
	a.logger.Info().Msg("Starting sweeper mode")

	policy, err := sweeper.ParsePolicy(a.cfg.AutoPublishPolicy)
	if err != nil {
		return err
	}

	sw := sweeper.New(a.database, svc.engine, sweeper.Config{
		AutoCloseInterval:   a.cfg.AutoCloseInterval,
		AutoPublishEnabled:  a.cfg.AutoPublishEnabled,
		AutoPublishInterval: a.cfg.AutoPublishInterval,
		PublishPolicy:       policy,
	}, a.component("sweeper"))

	if err := sw.Run(ctx); err != nil {
		return fmt.Errorf("sweeper run: %w", err)
	}

	return nil
}

// RunAll runs server, ingest and sweeper in one process. The first mode to
// fail stops the others.
func (a *App) RunAll(ctx context.Context) error {
	svc, err := a.newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.similarity.Close()

	g, ctx := errgroup.WithContext(ctx)

	modes := map[string]func(context.Context, *services) error{
		"server":  a.runServer,
		"ingest":  a.runIngest,
		"sweeper": a.runSweeper,
	}

	for name, run := range modes {
		g.Go(func() error {
			if err := run(ctx, svc); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// RunImportHistory backfills replies of every bound topic through a user session.
func (a *App) RunImportHistory(ctx context.Context) error {
	if !a.cfg.HistoryImportConfigured() {
		return errHistoryNotConfigured
	}

	a.logger.Info().Msg("Starting history import")

	importer := history.NewImporter(a.database, historyPageSize, a.component("history"))
	start := time.Now()

	err := history.Run(ctx, history.Config{
		APIID:       a.cfg.TGAPIID,
		APIHash:     a.cfg.TGAPIHash,
		Phone:       a.cfg.TGPhone,
		Password:    a.cfg.TG2FAPassword,
		SessionPath: a.cfg.TGSessionPath,
	}, a.component("mtproto"), func(ctx context.Context, fetcher history.Fetcher) error {
		res, err := importer.Import(ctx, fetcher)
		if err != nil {
			return err
		}

		a.logger.Info().
			Int("threads", res.Threads).
			Int("inserted", res.Inserted).
			Int("skipped", res.Skipped).
			Dur("duration", time.Since(start)).
			Msg("history import finished")

		return nil
	})
	if err != nil {
		return fmt.Errorf("history import: %w", err)
	}

	return nil
}
