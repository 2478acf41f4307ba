// Package lifecycle drives questions through VOTING, SCHEDULED, POSTED, CLOSED and
// ARCHIVED, performing the forum side effects of each transition.
//
// Every transition runs under a per-question database lock and re-checks the
// expected prior status when it persists. External calls are made outside any
// database transaction; the new status is written only after the external
// sequence has succeeded.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/platform/observability"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
	"github.com/lueurxax/question-forum/internal/platform/worker"
)

const (
	DefaultGracePeriod  = 7 * 24 * time.Hour
	DefaultCallTimeout  = 15 * time.Second
	DefaultMessageLimit = 4096

	topicTitleMaxRunes = 100

	transitionPublish = "publish"
	transitionClose   = "close"
	transitionArchive = "archive"

	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"

	logKeyQuestionID = "question_id"
	logKeyThreadID   = "thread_id"
	logKeyStep       = "step"
)

// Store is the persistence the engine needs.
type Store interface {
	ports.QuestionRepository
	ports.AnswerRepository
	ports.VoteRepository
	ports.TransitionRepository
	ports.LockRepository
}

// SimilarityRefresher recomputes the similar list of one question in the background.
type SimilarityRefresher interface {
	RefreshAsync(questionID int64)
}

// Config holds engine settings.
type Config struct {
	ChatID       int64
	GracePeriod  time.Duration
	CallTimeout  time.Duration
	MessageLimit int
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}

	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}

	if c.MessageLimit <= 0 {
		c.MessageLimit = DefaultMessageLimit
	}

	return c
}

// Engine applies lifecycle operations. It is safe for concurrent use.
type Engine struct {
	store      Store
	messenger  ports.Messenger
	summarizer ports.Summarizer
	similarity SimilarityRefresher
	cfg        Config
	logger     *zerolog.Logger
	now        func() time.Time
}

// New creates an Engine. similarity may be nil.
func New(store Store, messenger ports.Messenger, summarizer ports.Summarizer, similarity SimilarityRefresher, cfg Config, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Engine{
		store:      store,
		messenger:  messenger,
		summarizer: summarizer,
		similarity: similarity,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
	}
}

// AnswerInput is the final answer supplied with a create or edit.
type AnswerInput struct {
	Text     string
	Summary  string
	Sources  []domain.AnswerSource
	AuthorID int64
}

// QuestionInput carries the authorable fields of a question.
type QuestionInput struct {
	Title    string
	Body     string
	Status   domain.Status
	AuthorID int64
	Modules  []domain.ModuleRef
	Answer   *AnswerInput
}

// Create stores a new question together with its optional answer. Only VOTING
// (the default) and SCHEDULED may be requested.
func (e *Engine) Create(ctx context.Context, in QuestionInput) (*domain.Question, error) {
	if in.Status == "" {
		in.Status = domain.StatusVoting
	}

	if in.Status != domain.StatusVoting && in.Status != domain.StatusScheduled {
		return nil, fmt.Errorf("create in %s: %w", in.Status, coreerrors.ErrInvalidTransition)
	}

	draft, err := e.prepareDraft(ctx, in)
	if err != nil {
		return nil, err
	}

	q, err := e.store.CreateQuestion(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	e.logger.Info().Int64(logKeyQuestionID, q.ID).Str("status", string(q.Status)).Msg("question created")
	e.refresh(q.ID)

	return q, nil
}

// Edit replaces the authorable fields of a question. The status is kept unless in.Status
// names a legal transition that needs no forum side effect (VOTING -> SCHEDULED).
// Edits hold the question lock, so they never interleave with a running transition.
func (e *Engine) Edit(ctx context.Context, id int64, in QuestionInput) (*domain.Question, error) {
	var q *domain.Question

	err := e.store.WithQuestionLock(ctx, id, func(ctx context.Context) error {
		var editErr error
		q, editErr = e.edit(ctx, id, in)

		return editErr
	})
	if err != nil {
		return nil, fmt.Errorf("edit question %d: %w", id, err)
	}

	e.logger.Info().Int64(logKeyQuestionID, id).Msg("question edited")
	e.refresh(id)

	return q, nil
}

func (e *Engine) edit(ctx context.Context, id int64, in QuestionInput) (*domain.Question, error) {
	current, err := e.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case in.Status == "" || in.Status == current.Status:
		in.Status = current.Status
	case current.Status == domain.StatusVoting && in.Status == domain.StatusScheduled:
	default:
		if err := domain.ValidateTransition(current.Status, in.Status); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%s -> %s needs its own operation: %w",
			current.Status, in.Status, coreerrors.ErrInvalidTransition)
	}

	draft, err := e.prepareDraft(ctx, in)
	if err != nil {
		return nil, err
	}

	return e.store.UpdateQuestion(ctx, id, current.Status, draft)
}

func (e *Engine) prepareDraft(ctx context.Context, in QuestionInput) (ports.QuestionDraft, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return ports.QuestionDraft{}, coreerrors.ErrEmptyBody
	}

	if len(in.Modules) > 0 {
		ids := make([]int64, len(in.Modules))
		for i, m := range in.Modules {
			ids[i] = m.ModuleID
		}

		missing, err := e.store.MissingModules(ctx, ids)
		if err != nil {
			return ports.QuestionDraft{}, fmt.Errorf("check modules: %w", err)
		}

		if len(missing) > 0 {
			return ports.QuestionDraft{}, fmt.Errorf("modules %v: %w", missing, coreerrors.ErrUnknownModule)
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = e.summarizer.Title(ctx, body)
	}

	return ports.QuestionDraft{
		Title:    title,
		Body:     body,
		Status:   in.Status,
		AuthorID: in.AuthorID,
		Modules:  in.Modules,
		Answer:   e.prepareAnswer(ctx, in.Answer),
	}, nil
}

// prepareAnswer returns nil when no answer text was supplied.
func (e *Engine) prepareAnswer(ctx context.Context, in *AnswerInput) *domain.Answer {
	if in == nil {
		return nil
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}

	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		summary = e.summarizer.Summary(ctx, text)
	}

	return &domain.Answer{
		Summary:  summary,
		Text:     text,
		Sources:  in.Sources,
		AuthorID: in.AuthorID,
	}
}

// ToggleVote flips the vote of voterID on a question and returns the new state.
func (e *Engine) ToggleVote(ctx context.Context, questionID, voterID int64) (domain.VoteResult, error) {
	res, err := e.store.ToggleVote(ctx, questionID, voterID)
	if err != nil {
		return domain.VoteResult{}, fmt.Errorf("toggle vote on question %d: %w", questionID, err)
	}

	action := "unvote"
	if res.Voted {
		action = "vote"
	}

	observability.VotesTotal.WithLabelValues(action).Inc()

	return res, nil
}

// Publish opens a forum topic for the question, posts its body and binds the topic.
func (e *Engine) Publish(ctx context.Context, questionID int64) (*TransitionReport, error) {
	report := &TransitionReport{QuestionID: questionID, Transition: transitionPublish}

	err := e.run(ctx, report, func(ctx context.Context) error {
		return e.publish(ctx, report)
	})

	return report, err
}

func (e *Engine) publish(ctx context.Context, report *TransitionReport) error {
	q, err := e.store.GetQuestion(ctx, report.QuestionID)
	if err != nil {
		return err
	}

	existing, err := e.store.GetBinding(ctx, q.ID)
	if err != nil {
		return err
	}

	if existing != nil {
		return coreerrors.ErrAlreadyPublished
	}

	if err := domain.ValidateTransition(q.Status, domain.StatusPosted); err != nil {
		return err
	}

	title := textutil.Ellipsize(q.DisplayTitle(), topicTitleMaxRunes)

	var icon string
	if len(q.Modules) > 0 {
		icon = q.Modules[0].Icon
	}

	var topic ports.TopicRef

	err = e.step(ctx, report, StepOpenTopic, OutcomeFatal, func(ctx context.Context) error {
		var openErr error
		topic, openErr = e.messenger.OpenTopic(ctx, e.cfg.ChatID, title, icon)

		return openErr
	})
	if err != nil {
		return err
	}

	var openingID int64

	err = e.step(ctx, report, StepSendQuestion, OutcomeFatal, func(ctx context.Context) error {
		var sendErr error
		openingID, sendErr = e.messenger.SendMessage(ctx, topic, ports.OutgoingMessage{
			Text: fitMessage(q.Body, e.cfg.MessageLimit),
		})

		return sendErr
	})
	if err != nil {
		return e.orphaned(q.ID, topic, err)
	}

	openedAt := e.now().UTC()

	binding, err := e.store.MarkPublished(ctx, q.Status, domain.DiscussionBinding{
		QuestionID:       q.ID,
		ChatID:           topic.ChatID,
		ThreadID:         topic.ThreadID,
		OpeningMessageID: openingID,
		OpenedAt:         openedAt,
		CloseAt:          openedAt.Add(e.cfg.GracePeriod),
	})
	if err != nil {
		report.add(StepPersist, OutcomeFatal, err, 0)

		return e.orphaned(q.ID, topic, err)
	}

	report.Binding = binding

	e.logger.Info().
		Int64(logKeyQuestionID, q.ID).
		Int64(logKeyThreadID, topic.ThreadID).
		Time("close_at", binding.CloseAt).
		Msg("question published")

	return nil
}

func (e *Engine) orphaned(questionID int64, topic ports.TopicRef, err error) error {
	observability.OrphanedThreads.Inc()

	e.logger.Error().Err(err).
		Int64(logKeyQuestionID, questionID).
		Int64("chat_id", topic.ChatID).
		Int64(logKeyThreadID, topic.ThreadID).
		Msg("forum topic opened but not bound, manual reconciliation required")

	return &OrphanedThreadError{QuestionID: questionID, ChatID: topic.ChatID, ThreadID: topic.ThreadID, Err: err}
}

// CloseDiscussion closes the forum topic of a POSTED question. actor is shown in the
// closing notice; use SystemActor for the scheduled close.
func (e *Engine) CloseDiscussion(ctx context.Context, questionID int64, actor string) (*TransitionReport, error) {
	report := &TransitionReport{QuestionID: questionID, Transition: transitionClose}

	err := e.run(ctx, report, func(ctx context.Context) error {
		return e.closeDiscussion(ctx, report, actor)
	})

	return report, err
}

func (e *Engine) closeDiscussion(ctx context.Context, report *TransitionReport, actor string) error {
	q, err := e.store.GetQuestion(ctx, report.QuestionID)
	if err != nil {
		return err
	}

	if err := domain.ValidateTransition(q.Status, domain.StatusClosed); err != nil {
		return err
	}

	binding, err := e.store.GetBinding(ctx, q.ID)
	if err != nil {
		return err
	}

	if binding == nil {
		return coreerrors.ErrBindingNotFound
	}

	if !binding.IsOpen() {
		return coreerrors.ErrNoOpenDiscussion
	}

	topic := ports.TopicRef{ChatID: binding.ChatID, ThreadID: binding.ThreadID}

	var noticeID int64

	// The notice is best effort; the topic close decides the transition.
	_ = e.step(ctx, report, StepSendNotice, OutcomeRecoverable, func(ctx context.Context) error { //nolint:errcheck // recoverable step
		var sendErr error
		noticeID, sendErr = e.messenger.SendMessage(ctx, topic, ports.OutgoingMessage{Text: closeNotice(actor)})

		return sendErr
	})

	err = e.step(ctx, report, StepCloseTopic, OutcomeFatal, func(ctx context.Context) error {
		return e.messenger.CloseTopic(ctx, topic)
	})
	if err != nil {
		return err
	}

	if err := e.store.MarkClosed(ctx, q.ID, e.now().UTC(), noticeID); err != nil {
		report.add(StepPersist, OutcomeFatal, err, 0)

		return err
	}

	e.logger.Info().
		Int64(logKeyQuestionID, q.ID).
		Int64(logKeyThreadID, binding.ThreadID).
		Str("actor", actor).
		Msg("discussion closed")

	return nil
}

// Archive posts the final answer into the closed topic and marks the question ARCHIVED.
// The topic is reopened for the post and closed again afterwards.
func (e *Engine) Archive(ctx context.Context, questionID int64) (*TransitionReport, error) {
	report := &TransitionReport{QuestionID: questionID, Transition: transitionArchive}

	err := e.run(ctx, report, func(ctx context.Context) error {
		return e.archive(ctx, report)
	})
	if err == nil {
		e.refresh(questionID)
	}

	return report, err
}

func (e *Engine) archive(ctx context.Context, report *TransitionReport) error {
	q, err := e.store.GetQuestion(ctx, report.QuestionID)
	if err != nil {
		return err
	}

	if err := domain.ValidateTransition(q.Status, domain.StatusArchived); err != nil {
		return err
	}

	answer, err := e.store.GetAnswer(ctx, q.ID)
	if err != nil {
		return err
	}

	if !answer.HasText() {
		return coreerrors.ErrAnswerRequired
	}

	binding, err := e.store.GetBinding(ctx, q.ID)
	if err != nil {
		return err
	}

	if binding == nil {
		return coreerrors.ErrBindingNotFound
	}

	topic := ports.TopicRef{ChatID: binding.ChatID, ThreadID: binding.ThreadID}

	err = e.step(ctx, report, StepReopenTopic, OutcomeFatal, func(ctx context.Context) error {
		return e.messenger.ReopenTopic(ctx, topic)
	})
	if err != nil {
		return err
	}

	var answerID int64

	err = e.step(ctx, report, StepSendAnswer, OutcomeFatal, func(ctx context.Context) error {
		var sendErr error
		answerID, sendErr = e.messenger.SendMessage(ctx, topic, ports.OutgoingMessage{
			Text: answerMessage(answer, e.cfg.MessageLimit),
		})

		return sendErr
	})
	if err != nil {
		return err
	}

	err = e.step(ctx, report, StepCloseTopic, OutcomeFatal, func(ctx context.Context) error {
		return e.messenger.CloseTopic(ctx, topic)
	})
	if err != nil {
		return err
	}

	if err := e.store.MarkArchived(ctx, q.ID, e.now().UTC(), answerID); err != nil {
		report.add(StepPersist, OutcomeFatal, err, 0)

		return err
	}

	e.logger.Info().
		Int64(logKeyQuestionID, q.ID).
		Int64(logKeyThreadID, binding.ThreadID).
		Int64("answer_message_id", answerID).
		Msg("question archived")

	return nil
}

// run holds the question lock around fn and records transition metrics.
func (e *Engine) run(ctx context.Context, report *TransitionReport, fn func(ctx context.Context) error) error {
	start := time.Now()

	err := e.store.WithQuestionLock(ctx, report.QuestionID, fn)

	observability.TransitionDuration.WithLabelValues(report.Transition).Observe(time.Since(start).Seconds())

	outcome := outcomeOK

	switch {
	case err == nil:
	case coreerrors.IsPrecondition(err) || errors.Is(err, coreerrors.ErrNotFound) ||
		errors.Is(err, coreerrors.ErrQuestionNotFound) || errors.Is(err, coreerrors.ErrBindingNotFound):
		outcome = outcomeRejected
	default:
		outcome = outcomeFailed
	}

	observability.TransitionsTotal.WithLabelValues(report.Transition, outcome).Inc()

	if err != nil {
		return fmt.Errorf("%s question %d: %w", report.Transition, report.QuestionID, err)
	}

	return nil
}

// step runs one external call with the configured timeout and records its outcome.
// A failed step is reported with onFailure; fatal failures are returned as *StepError.
func (e *Engine) step(ctx context.Context, report *TransitionReport, name string, onFailure Outcome, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := worker.RunWithTimeout(ctx, e.cfg.CallTimeout, fn)
	elapsed := time.Since(start)

	if err == nil {
		report.add(name, OutcomeSuccess, nil, elapsed)

		return nil
	}

	report.add(name, onFailure, err, elapsed)
	observability.TransitionStepFailures.WithLabelValues(report.Transition, name, string(onFailure)).Inc()

	ev := e.logger.Error()
	if onFailure == OutcomeRecoverable {
		ev = e.logger.Warn()
	}

	ev.Err(err).
		Int64(logKeyQuestionID, report.QuestionID).
		Str(logKeyStep, name).
		Dur("duration", elapsed).
		Msgf("%s step failed", report.Transition)

	return &StepError{Transition: report.Transition, Step: name, Err: err}
}

func (e *Engine) refresh(questionID int64) {
	if e.similarity != nil {
		e.similarity.RefreshAsync(questionID)
	}
}
