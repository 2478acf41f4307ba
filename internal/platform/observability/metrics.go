package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_transitions_total",
		Help: "Total number of lifecycle transitions by outcome",
	}, []string{"transition", "outcome"})

	TransitionStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_transition_step_failures_total",
		Help: "Failed transition steps by transition, step and severity",
	}, []string{"transition", "step", "severity"})

	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_transition_duration_seconds",
		Help:    "Duration of lifecycle transitions",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"transition"})

	OrphanedThreads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_orphaned_threads_total",
		Help: "Threads opened in the chat that could not be persisted",
	})

	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_votes_total",
		Help: "Vote toggles by resulting action",
	}, []string{"action"})

	QuestionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_questions_created_total",
		Help: "Total number of created questions",
	})

	// Discussion ingestion metrics
	DiscussionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_discussion_events_total",
		Help: "Incoming chat events by kind and outcome",
	}, []string{"kind", "outcome"})

	HistoryMessagesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_history_messages_imported_total",
		Help: "Messages inserted by the history backfill",
	})

	// Sweeper metrics
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_sweep_runs_total",
		Help: "Periodic sweep runs by status",
	}, []string{"sweep", "status"})

	SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_sweep_items_total",
		Help: "Items handled by periodic sweeps",
	}, []string{"sweep", "outcome"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_sweep_duration_seconds",
		Help:    "Duration of periodic sweeps",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"sweep"})

	// Similarity metrics
	SimilarityCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forum_similarity_cache_entries",
		Help: "Number of questions with cached similar lists",
	})

	SimilarityComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_similarity_computations_total",
		Help: "Similar-list computations by source (embedding or modules)",
	}, []string{"source"})

	// Telegram transport metrics
	TelegramRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_telegram_requests_total",
		Help: "Bot API requests by method and status",
	}, []string{"method", "status"})

	// Summarizer metrics
	SummarizerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_summarizer_requests_total",
		Help: "Title and summary generation requests by provider and status",
	}, []string{"provider", "task", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_embedding_requests_total",
		Help: "Total number of embedding requests",
	}, []string{"provider", "model", "status"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_embedding_latency_seconds",
		Help:    "Latency of embedding requests by provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "model"})

	EmbeddingProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forum_embedding_provider_available",
		Help: "Whether embedding provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})

	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_embedding_fallbacks_total",
		Help: "Total number of embedding fallback events",
	}, []string{"from_provider", "to_provider"})
)
