package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

type messageKey struct {
	chatID    int64
	messageID int64
}

// Store is a thread-safe in-memory implementation of the repository ports.
type Store struct {
	mu sync.Mutex

	nextID     int64
	nextBindID int64
	modules    map[int64]domain.Module
	questions  map[int64]*domain.Question
	refs       map[int64][]domain.ModuleRef
	votes      map[int64]map[int64]time.Time
	answers    map[int64]domain.Answer
	bindings   map[int64]*domain.DiscussionBinding
	messages   map[messageKey]*domain.DiscussionMessage
	embeddings map[int64]domain.Embedding
	locks      map[int64]bool

	// Now returns the current time for created_at stamps.
	Now func() time.Time

	// NearestQuestionsFn allows overriding NearestQuestions behavior.
	NearestQuestionsFn func(ctx context.Context, questionID int64, limit int) ([]int64, error)

	// AnswerErr, when set, fails every write that carries an answer before
	// anything is stored.
	AnswerErr error

	// MarkPublishedFn allows overriding MarkPublished behavior.
	MarkPublishedFn func(ctx context.Context, from domain.Status, binding domain.DiscussionBinding) (*domain.DiscussionBinding, error)
}

var (
	_ ports.QuestionRepository   = (*Store)(nil)
	_ ports.AnswerRepository     = (*Store)(nil)
	_ ports.VoteRepository       = (*Store)(nil)
	_ ports.TransitionRepository = (*Store)(nil)
	_ ports.LockRepository       = (*Store)(nil)
	_ ports.DiscussionRepository = (*Store)(nil)
	_ ports.EmbeddingRepository  = (*Store)(nil)
	_ ports.SweepRepository      = (*Store)(nil)
	_ ports.CatalogRepository    = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		modules:    make(map[int64]domain.Module),
		questions:  make(map[int64]*domain.Question),
		refs:       make(map[int64][]domain.ModuleRef),
		votes:      make(map[int64]map[int64]time.Time),
		answers:    make(map[int64]domain.Answer),
		bindings:   make(map[int64]*domain.DiscussionBinding),
		messages:   make(map[messageKey]*domain.DiscussionMessage),
		embeddings: make(map[int64]domain.Embedding),
		locks:      make(map[int64]bool),
		Now:        time.Now,
	}
}

// AddModule registers a module.
func (s *Store) AddModule(m domain.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modules[m.ID] = m
}

// SetCreatedAt overrides a question's creation time.
func (s *Store) SetCreatedAt(id int64, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.questions[id]; ok {
		q.CreatedAt = t
	}
}

// VoteRows returns the number of vote rows of a question.
func (s *Store) VoteRows(questionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.votes[questionID])
}

// MessageCount returns the number of stored messages.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.messages)
}

// Message returns a stored message.
func (s *Store) Message(chatID, messageID int64) (domain.DiscussionMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return domain.DiscussionMessage{}, false
	}

	return *m, true
}

// BindingCount returns the number of thread bindings.
func (s *Store) BindingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.bindings)
}

// CreateQuestion implements ports.QuestionRepository.
func (s *Store) CreateQuestion(_ context.Context, draft ports.QuestionDraft) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkModules(draft.Modules); err != nil {
		return nil, err
	}

	if draft.Answer != nil && s.AnswerErr != nil {
		return nil, s.AnswerErr
	}

	s.nextID++

	status := draft.Status
	if status == "" {
		status = domain.StatusVoting
	}

	q := &domain.Question{
		ID:        s.nextID,
		Title:     draft.Title,
		Body:      draft.Body,
		Status:    status,
		AuthorID:  draft.AuthorID,
		CreatedAt: s.Now(),
	}
	s.questions[q.ID] = q
	s.refs[q.ID] = dedupRefs(draft.Modules)
	s.putDraftAnswer(q.ID, draft.Answer)

	return s.snapshot(q.ID), nil
}

// UpdateQuestion implements ports.QuestionRepository.
func (s *Store) UpdateQuestion(_ context.Context, id int64, expected domain.Status, draft ports.QuestionDraft) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", id, coreerrors.ErrQuestionNotFound)
	}

	if q.Status != expected {
		return nil, fmt.Errorf("question %d: %w", id, coreerrors.ErrStatusConflict)
	}

	if err := s.checkModules(draft.Modules); err != nil {
		return nil, err
	}

	if draft.Answer != nil && s.AnswerErr != nil {
		return nil, s.AnswerErr
	}

	q.Title = draft.Title
	q.Body = draft.Body
	q.Status = draft.Status
	s.refs[id] = dedupRefs(draft.Modules)
	s.putDraftAnswer(id, draft.Answer)

	return s.snapshot(id), nil
}

// GetQuestion implements ports.QuestionRepository.
func (s *Store) GetQuestion(_ context.Context, id int64) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[id]; !ok {
		return nil, fmt.Errorf("question %d: %w", id, coreerrors.ErrQuestionNotFound)
	}

	return s.snapshot(id), nil
}

// ListQuestionIDs implements ports.QuestionRepository.
func (s *Store) ListQuestionIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.questions))
	for id := range s.questions {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// MissingModules implements ports.QuestionRepository.
func (s *Store) MissingModules(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []int64

	for _, id := range ids {
		if _, ok := s.modules[id]; !ok {
			missing = append(missing, id)
		}
	}

	return missing, nil
}

func (s *Store) checkModules(refs []domain.ModuleRef) error {
	for _, ref := range refs {
		if _, ok := s.modules[ref.ModuleID]; !ok {
			return fmt.Errorf("attach modules: %w", coreerrors.ErrUnknownModule)
		}
	}

	return nil
}

func dedupRefs(refs []domain.ModuleRef) []domain.ModuleRef {
	seen := make(map[int64]bool, len(refs))
	out := make([]domain.ModuleRef, 0, len(refs))

	for _, ref := range refs {
		if !seen[ref.ModuleID] {
			seen[ref.ModuleID] = true
			out = append(out, ref)
		}
	}

	return out
}

// snapshot returns a copy of the question with modules ordered primary first. Caller holds mu.
func (s *Store) snapshot(id int64) *domain.Question {
	q := *s.questions[id]
	refs := s.refs[id]

	q.Modules = make([]domain.Module, 0, len(refs))

	for _, primaryPass := range []bool{true, false} {
		for _, ref := range refs {
			if ref.IsPrimary != primaryPass {
				continue
			}

			m := s.modules[ref.ModuleID]
			m.IsPrimary = ref.IsPrimary
			q.Modules = append(q.Modules, m)
		}
	}

	return &q
}

// UpsertAnswer implements ports.AnswerRepository.
func (s *Store) UpsertAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[answer.QuestionID]; !ok {
		return fmt.Errorf("question %d: %w", answer.QuestionID, coreerrors.ErrQuestionNotFound)
	}

	if s.AnswerErr != nil {
		return s.AnswerErr
	}

	s.putAnswer(answer)

	return nil
}

func (s *Store) putDraftAnswer(questionID int64, answer *domain.Answer) {
	if answer == nil {
		return
	}

	a := *answer
	a.QuestionID = questionID
	s.putAnswer(a)
}

func (s *Store) putAnswer(answer domain.Answer) {
	now := s.Now()
	if prev, ok := s.answers[answer.QuestionID]; ok {
		answer.CreatedAt = prev.CreatedAt
		answer.PublishedToTelegram = prev.PublishedToTelegram
	} else {
		answer.CreatedAt = now
	}

	answer.UpdatedAt = now
	s.answers[answer.QuestionID] = answer
}

// GetAnswer implements ports.AnswerRepository.
func (s *Store) GetAnswer(_ context.Context, questionID int64) (*domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.answers[questionID]
	if !ok {
		return nil, nil //nolint:nilnil // nil means no answer yet
	}

	return &a, nil
}

// ToggleVote implements ports.VoteRepository.
func (s *Store) ToggleVote(_ context.Context, questionID, voterID int64) (domain.VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return domain.VoteResult{}, fmt.Errorf("question %d: %w", questionID, coreerrors.ErrQuestionNotFound)
	}

	voters := s.votes[questionID]
	if voters == nil {
		voters = make(map[int64]time.Time)
		s.votes[questionID] = voters
	}

	var voted bool

	if _, ok := voters[voterID]; ok {
		delete(voters, voterID)
	} else {
		voters[voterID] = s.Now()
		voted = true
	}

	q.VotesCount = len(voters)

	return domain.VoteResult{Voted: voted, VotesCount: q.VotesCount}, nil
}

// VotedQuestionIDs implements ports.VoteRepository.
func (s *Store) VotedQuestionIDs(_ context.Context, voterID int64, questionIDs []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voted := make(map[int64]bool)

	for _, id := range questionIDs {
		if _, ok := s.votes[id][voterID]; ok {
			voted[id] = true
		}
	}

	return voted, nil
}

// GetBinding implements ports.TransitionRepository.
func (s *Store) GetBinding(_ context.Context, questionID int64) (*domain.DiscussionBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[questionID]
	if !ok {
		return nil, nil //nolint:nilnil // nil means no thread
	}

	cp := *b

	return &cp, nil
}

func (s *Store) conditional(questionID int64, from domain.Status) (*domain.Question, error) {
	q, ok := s.questions[questionID]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", questionID, coreerrors.ErrQuestionNotFound)
	}

	if q.Status != from {
		return nil, fmt.Errorf("question %d: %w", questionID, coreerrors.ErrStatusConflict)
	}

	return q, nil
}

// SetStatus implements ports.TransitionRepository.
func (s *Store) SetStatus(_ context.Context, questionID int64, from, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.conditional(questionID, from)
	if err != nil {
		return err
	}

	q.Status = to

	return nil
}

// MarkPublished implements ports.TransitionRepository.
func (s *Store) MarkPublished(ctx context.Context, from domain.Status, binding domain.DiscussionBinding) (*domain.DiscussionBinding, error) {
	if s.MarkPublishedFn != nil {
		return s.MarkPublishedFn(ctx, from, binding)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.conditional(binding.QuestionID, from)
	if err != nil {
		return nil, err
	}

	if _, ok := s.bindings[binding.QuestionID]; ok {
		return nil, fmt.Errorf("question %d: %w", binding.QuestionID, coreerrors.ErrAlreadyPublished)
	}

	s.nextBindID++
	binding.ID = s.nextBindID
	stored := binding
	s.bindings[binding.QuestionID] = &stored

	q.Status = domain.StatusPosted
	if q.PostedAt.IsZero() {
		q.PostedAt = binding.OpenedAt
	}

	return &binding, nil
}

// MarkClosed implements ports.TransitionRepository.
func (s *Store) MarkClosed(_ context.Context, questionID int64, closedAt time.Time, noticeMessageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.conditional(questionID, domain.StatusPosted)
	if err != nil {
		return err
	}

	b, ok := s.bindings[questionID]
	if !ok || !b.IsOpen() {
		return fmt.Errorf("question %d: %w", questionID, coreerrors.ErrNoOpenDiscussion)
	}

	b.ClosedAt = closedAt
	if noticeMessageID != 0 {
		b.ClosingMessageID = noticeMessageID
	}

	q.Status = domain.StatusClosed
	if q.ClosedAt.IsZero() {
		q.ClosedAt = closedAt
	}

	return nil
}

// MarkArchived implements ports.TransitionRepository.
func (s *Store) MarkArchived(_ context.Context, questionID int64, archivedAt time.Time, answerMessageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.conditional(questionID, domain.StatusClosed)
	if err != nil {
		return err
	}

	q.Status = domain.StatusArchived
	if q.ArchivedAt.IsZero() {
		q.ArchivedAt = archivedAt
	}

	if a, ok := s.answers[questionID]; ok {
		a.PublishedToTelegram = true
		s.answers[questionID] = a
	}

	if b, ok := s.bindings[questionID]; ok && answerMessageID != 0 {
		b.AnswerMessageID = answerMessageID
	}

	return nil
}

// WithQuestionLock implements ports.LockRepository.
func (s *Store) WithQuestionLock(ctx context.Context, questionID int64, fn func(ctx context.Context) error) error {
	acquired, err := s.WithAdvisoryLock(ctx, -questionID, fn)
	if err != nil {
		return err
	}

	if !acquired {
		return fmt.Errorf("question %d: %w", questionID, coreerrors.ErrTransitionInProgress)
	}

	return nil
}

// WithAdvisoryLock implements ports.LockRepository.
func (s *Store) WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	s.mu.Lock()
	if s.locks[lockID] {
		s.mu.Unlock()

		return false, nil
	}

	s.locks[lockID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.locks, lockID)
		s.mu.Unlock()
	}()

	return true, fn(ctx)
}

// HoldLock marks a question lock as taken by another session.
func (s *Store) HoldLock(questionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[-questionID] = true
}

func (s *Store) bindingByThread(chatID, threadID int64) *domain.DiscussionBinding {
	for _, b := range s.bindings {
		if b.ChatID == chatID && b.ThreadID == threadID {
			return b
		}
	}

	return nil
}

// GetBindingByThread implements ports.DiscussionRepository.
func (s *Store) GetBindingByThread(_ context.Context, chatID, threadID int64) (*domain.DiscussionBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bindingByThread(chatID, threadID)
	if b == nil {
		return nil, nil //nolint:nilnil // nil means the thread is not tracked
	}

	cp := *b

	return &cp, nil
}

// GetBindingByMessage implements ports.DiscussionRepository.
func (s *Store) GetBindingByMessage(_ context.Context, chatID, messageID int64) (*domain.DiscussionBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return nil, nil //nolint:nilnil // nil means the message is not tracked
	}

	b := s.bindingByThread(m.ChatID, m.ThreadID)
	if b == nil {
		return nil, nil //nolint:nilnil // nil means the thread is not tracked
	}

	cp := *b

	return &cp, nil
}

// ListBindings implements ports.DiscussionRepository.
func (s *Store) ListBindings(_ context.Context) ([]domain.DiscussionBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.DiscussionBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// UpsertMessage implements ports.DiscussionRepository.
func (s *Store) UpsertMessage(_ context.Context, msg domain.DiscussionMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey{msg.ChatID, msg.MessageID}
	if existing, ok := s.messages[key]; ok {
		if existing.EditedAt.IsZero() {
			existing.Text = msg.Text
		}

		return false, nil
	}

	msg.ReactionCount = 0
	s.messages[key] = &msg

	if b := s.bindingByThread(msg.ChatID, msg.ThreadID); b != nil {
		b.MessagesCount++
	}

	return true, nil
}

// UpdateMessageText implements ports.DiscussionRepository.
func (s *Store) UpdateMessageText(_ context.Context, chatID, messageID int64, text string, editedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return false, nil
	}

	m.Text = text
	m.EditedAt = editedAt

	return true, nil
}

// AddReactions implements ports.DiscussionRepository.
func (s *Store) AddReactions(_ context.Context, chatID, messageID int64, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return false, nil
	}

	m.ReactionCount = max(0, m.ReactionCount+delta)

	return true, nil
}

// SetReactions implements ports.DiscussionRepository.
func (s *Store) SetReactions(_ context.Context, chatID, messageID int64, total int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageKey{chatID, messageID}]
	if !ok {
		return false, nil
	}

	m.ReactionCount = max(0, total)

	return true, nil
}

// ListThreadMessages implements ports.DiscussionRepository.
func (s *Store) ListThreadMessages(_ context.Context, chatID, threadID int64) ([]domain.DiscussionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.DiscussionMessage

	for _, m := range s.messages {
		if m.ChatID == chatID && m.ThreadID == threadID {
			out = append(out, *m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}

		return out[i].MessageID < out[j].MessageID
	})

	return out, nil
}

// GetEmbedding implements ports.EmbeddingRepository.
func (s *Store) GetEmbedding(_ context.Context, questionID int64) (*domain.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.embeddings[questionID]
	if !ok {
		return nil, nil //nolint:nilnil // nil means never embedded
	}

	return &e, nil
}

// SaveEmbedding implements ports.EmbeddingRepository.
func (s *Store) SaveEmbedding(_ context.Context, emb domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emb.UpdatedAt = s.Now()
	s.embeddings[emb.QuestionID] = emb

	return nil
}

// NearestQuestions implements ports.EmbeddingRepository using cosine distance.
func (s *Store) NearestQuestions(ctx context.Context, questionID int64, limit int) ([]int64, error) {
	if s.NearestQuestionsFn != nil {
		return s.NearestQuestionsFn(ctx, questionID, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	self, ok := s.embeddings[questionID]
	if !ok {
		return nil, nil
	}

	type scored struct {
		id   int64
		dist float64
	}

	var candidates []scored

	for id, e := range s.embeddings {
		if id != questionID {
			candidates = append(candidates, scored{id: id, dist: cosineDistance(self.Vector, e.Vector)})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}

		return candidates[i].id < candidates[j].id
	})

	ids := make([]int64, 0, limit)
	for i := 0; i < len(candidates) && i < limit; i++ {
		ids = append(ids, candidates[i].id)
	}

	return ids, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64

	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 1
	}

	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// QuestionsSharingModules implements ports.EmbeddingRepository.
func (s *Store) QuestionsSharingModules(_ context.Context, questionID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	own := make(map[int64]bool)
	for _, ref := range s.refs[questionID] {
		own[ref.ModuleID] = true
	}

	var ids []int64

	for id, refs := range s.refs {
		if id == questionID {
			continue
		}

		for _, ref := range refs {
			if own[ref.ModuleID] {
				ids = append(ids, id)

				break
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

// ListDueForClose implements ports.SweepRepository.
func (s *Store) ListDueForClose(_ context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64

	for qid, b := range s.bindings {
		if s.questions[qid].Status == domain.StatusPosted && b.IsOpen() && !b.CloseAt.After(now) {
			ids = append(ids, qid)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// NextPublishCandidate implements ports.SweepRepository.
func (s *Store) NextPublishCandidate(_ context.Context, policy ports.PublishPolicy) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.Question

	for id, q := range s.questions {
		if _, bound := s.bindings[id]; bound {
			continue
		}

		if q.Status == domain.StatusVoting || q.Status == domain.StatusScheduled {
			candidates = append(candidates, q)
		}
	}

	if len(candidates) == 0 {
		return nil, nil //nolint:nilnil // nil means nothing to publish
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.Status == domain.StatusScheduled) != (b.Status == domain.StatusScheduled) {
			return a.Status == domain.StatusScheduled
		}

		if policy != ports.PublishOldest && a.VotesCount != b.VotesCount {
			return a.VotesCount > b.VotesCount
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.ID < b.ID
	})

	return s.snapshot(candidates[0].ID), nil
}

// ListQuestions implements ports.CatalogRepository.
func (s *Store) ListQuestions(_ context.Context, filter ports.QuestionFilter) ([]ports.QuestionListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []ports.QuestionListItem

	for id, q := range s.questions {
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}

		if !filter.Since.IsZero() && q.CreatedAt.Before(filter.Since) {
			continue
		}

		if filter.ModuleID != 0 && !s.hasModule(id, filter.ModuleID) {
			continue
		}

		item := ports.QuestionListItem{Question: *s.snapshot(id)}

		if a, ok := s.answers[id]; ok {
			item.Answer = &a
		}

		if b, ok := s.bindings[id]; ok {
			cp := *b
			item.Binding = &cp
		}

		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Question, items[j].Question
		if a.VotesCount != b.VotesCount {
			return a.VotesCount > b.VotesCount
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}

		return a.ID > b.ID
	})

	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	return items, nil
}

func (s *Store) hasModule(questionID, moduleID int64) bool {
	for _, ref := range s.refs[questionID] {
		if ref.ModuleID == moduleID {
			return true
		}
	}

	return false
}
