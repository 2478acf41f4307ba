// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/question-forum/internal/core/domain"
)

// QuestionDraft carries the authorable fields of a question. A non-nil Answer is
// written in the same transaction as the question; its QuestionID is ignored.
type QuestionDraft struct {
	Title    string
	Body     string
	Status   domain.Status
	AuthorID int64
	Modules  []domain.ModuleRef
	Answer   *domain.Answer
}

// QuestionRepository persists questions and their module associations.
// GetQuestion returns coreerrors.ErrQuestionNotFound for unknown ids. UpdateQuestion
// writes only while the stored status still equals expected.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, draft QuestionDraft) (*domain.Question, error)
	UpdateQuestion(ctx context.Context, id int64, expected domain.Status, draft QuestionDraft) (*domain.Question, error)
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	ListQuestionIDs(ctx context.Context) ([]int64, error)
	MissingModules(ctx context.Context, ids []int64) ([]int64, error)
}

// AnswerRepository persists final answers. GetAnswer returns nil, nil when none exists.
type AnswerRepository interface {
	UpsertAnswer(ctx context.Context, answer domain.Answer) error
	GetAnswer(ctx context.Context, questionID int64) (*domain.Answer, error)
}

// VoteRepository maintains votes and the denormalized votes_count.
type VoteRepository interface {
	ToggleVote(ctx context.Context, questionID, voterID int64) (domain.VoteResult, error)
	VotedQuestionIDs(ctx context.Context, voterID int64, questionIDs []int64) (map[int64]bool, error)
}

// TransitionRepository applies lifecycle state changes. Every method re-checks the
// expected prior status inside its transaction and returns coreerrors.ErrStatusConflict
// when another writer got there first.
type TransitionRepository interface {
	GetBinding(ctx context.Context, questionID int64) (*domain.DiscussionBinding, error)
	SetStatus(ctx context.Context, questionID int64, from, to domain.Status) error
	MarkPublished(ctx context.Context, from domain.Status, binding domain.DiscussionBinding) (*domain.DiscussionBinding, error)
	MarkClosed(ctx context.Context, questionID int64, closedAt time.Time, noticeMessageID int64) error
	MarkArchived(ctx context.Context, questionID int64, archivedAt time.Time, answerMessageID int64) error
}

// LockRepository serializes work across processes with database advisory locks.
// WithQuestionLock returns coreerrors.ErrTransitionInProgress when the lock is held elsewhere.
// WithAdvisoryLock reports false without calling fn when the lock is held elsewhere.
type LockRepository interface {
	WithQuestionLock(ctx context.Context, questionID int64, fn func(ctx context.Context) error) error
	WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error)
}

// DiscussionRepository stores ingested thread messages. Methods keyed by an existing
// message report whether a row was affected.
type DiscussionRepository interface {
	GetBindingByThread(ctx context.Context, chatID, threadID int64) (*domain.DiscussionBinding, error)
	GetBindingByMessage(ctx context.Context, chatID, messageID int64) (*domain.DiscussionBinding, error)
	ListBindings(ctx context.Context) ([]domain.DiscussionBinding, error)
	UpsertMessage(ctx context.Context, msg domain.DiscussionMessage) (inserted bool, err error)
	UpdateMessageText(ctx context.Context, chatID, messageID int64, text string, editedAt time.Time) (bool, error)
	AddReactions(ctx context.Context, chatID, messageID int64, delta int) (bool, error)
	SetReactions(ctx context.Context, chatID, messageID int64, total int) (bool, error)
	ListThreadMessages(ctx context.Context, chatID, threadID int64) ([]domain.DiscussionMessage, error)
}

// EmbeddingRepository stores question embeddings and answers similarity queries.
// GetEmbedding returns nil, nil when no embedding exists.
type EmbeddingRepository interface {
	GetEmbedding(ctx context.Context, questionID int64) (*domain.Embedding, error)
	SaveEmbedding(ctx context.Context, emb domain.Embedding) error
	NearestQuestions(ctx context.Context, questionID int64, limit int) ([]int64, error)
	QuestionsSharingModules(ctx context.Context, questionID int64, limit int) ([]int64, error)
}

// SweepRepository finds the work of the periodic sweeps.
type SweepRepository interface {
	ListDueForClose(ctx context.Context, now time.Time) ([]int64, error)
	NextPublishCandidate(ctx context.Context, policy PublishPolicy) (*domain.Question, error)
}

// PublishPolicy picks which VOTING question the auto-publish sweep takes.
type PublishPolicy string

// Auto-publish policies.
const (
	// PublishByVotes orders by votes_count desc, created_at asc, id asc.
	PublishByVotes PublishPolicy = "votes"
	// PublishOldest orders by created_at asc, id asc.
	PublishOldest PublishPolicy = "oldest"
)

// QuestionFilter narrows the question listing.
type QuestionFilter struct {
	ModuleID int64
	Status   domain.Status
	Since    time.Time
	Limit    int
}

// QuestionListItem is one row of the ranked listing.
type QuestionListItem struct {
	Question domain.Question
	Answer   *domain.Answer
	Binding  *domain.DiscussionBinding
}

// CatalogRepository serves the question listing.
type CatalogRepository interface {
	ListQuestions(ctx context.Context, filter QuestionFilter) ([]QuestionListItem, error)
}
