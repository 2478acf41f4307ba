package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/core/ports/mocks"
	"github.com/lueurxax/question-forum/internal/platform/worker"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

type fixture struct {
	sweeper   *Sweeper
	engine    *lifecycle.Engine
	store     *mocks.Store
	messenger *mocks.Messenger
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	store := mocks.NewStore()
	messenger := mocks.NewMessenger()
	logger := zerolog.Nop()

	engine := lifecycle.New(store, messenger, mocks.Summarizer{}, nil, lifecycle.Config{ChatID: -100777}, &logger)

	return &fixture{
		sweeper:   New(store, engine, cfg, &logger),
		engine:    engine,
		store:     store,
		messenger: messenger,
	}
}

func (f *fixture) create(t *testing.T, body string, status domain.Status) int64 {
	t.Helper()

	q, err := f.engine.Create(context.Background(), lifecycle.QuestionInput{Body: body, Status: status})
	require.NoError(t, err)

	return q.ID
}

func (f *fixture) status(t *testing.T, id int64) domain.Status {
	t.Helper()

	q, err := f.store.GetQuestion(context.Background(), id)
	require.NoError(t, err)

	return q.Status
}

func TestAutoCloseClosesDueDiscussions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	ids := []int64{
		f.create(t, "one", ""),
		f.create(t, "two", ""),
	}
	for _, id := range ids {
		_, err := f.engine.Publish(ctx, id)
		require.NoError(t, err)
	}

	f.messenger.Reset()

	// within the grace period nothing is due
	require.NoError(t, f.sweeper.AutoClose(ctx))
	assert.Empty(t, f.messenger.Calls())

	f.sweeper.now = func() time.Time { return time.Now().Add(lifecycle.DefaultGracePeriod + time.Hour) }

	require.NoError(t, f.sweeper.AutoClose(ctx))

	for _, id := range ids {
		assert.Equal(t, domain.StatusClosed, f.status(t, id))
	}

	assert.Equal(t, []string{"SendMessage", "CloseTopic", "SendMessage", "CloseTopic"}, f.messenger.Methods())
	assert.Contains(t, f.messenger.Calls()[0].Text, "period is over")

	// a second pass finds nothing
	f.messenger.Reset()
	require.NoError(t, f.sweeper.AutoClose(ctx))
	assert.Empty(t, f.messenger.Calls())
}

type fakeLifecycle struct {
	mu      sync.Mutex
	failOn  map[int64]error
	closed  []int64
	publish []int64
}

func (l *fakeLifecycle) Publish(_ context.Context, id int64) (*lifecycle.TransitionReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.publish = append(l.publish, id)

	return &lifecycle.TransitionReport{QuestionID: id}, l.failOn[id]
}

func (l *fakeLifecycle) CloseDiscussion(_ context.Context, id int64, actor string) (*lifecycle.TransitionReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if actor != lifecycle.SystemActor {
		panic("unexpected actor " + actor)
	}

	l.closed = append(l.closed, id)

	return &lifecycle.TransitionReport{QuestionID: id}, l.failOn[id]
}

type staticStore struct {
	*mocks.Store
	due       []int64
	candidate *domain.Question
}

func (s *staticStore) ListDueForClose(context.Context, time.Time) ([]int64, error) {
	return s.due, nil
}

func (s *staticStore) NextPublishCandidate(context.Context, ports.PublishPolicy) (*domain.Question, error) {
	return s.candidate, nil
}

func TestAutoCloseIsolatesFailures(t *testing.T) {
	store := &staticStore{Store: mocks.NewStore(), due: []int64{1, 2, 3, 4}}
	engine := &fakeLifecycle{failOn: map[int64]error{
		2: mocks.ErrInjected,
		3: coreerrors.ErrNoOpenDiscussion,
	}}

	sw := New(store, engine, Config{}, nil)

	err := sw.AutoClose(context.Background())
	require.ErrorIs(t, err, ErrPartialFailure)
	assert.Contains(t, err.Error(), "1 of 4")
	assert.Equal(t, []int64{1, 2, 3, 4}, engine.closed)
}

func TestAutoCloseSkipsWhenLocked(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var inner error

	acquired, err := f.store.WithAdvisoryLock(ctx, autoCloseLockID, func(ctx context.Context) error {
		inner = f.sweeper.AutoClose(ctx)

		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired)
	require.ErrorIs(t, inner, worker.ErrSkipped)
}

func TestAutoPublishSelection(t *testing.T) {
	tests := []struct {
		name   string
		policy ports.PublishPolicy
		setup  func(t *testing.T, f *fixture) int64
	}{
		{
			name:   "most votes",
			policy: ports.PublishByVotes,
			setup: func(t *testing.T, f *fixture) int64 {
				f.create(t, "old", "")
				popular := f.create(t, "popular", "")
				_, err := f.engine.ToggleVote(context.Background(), popular, 1)
				require.NoError(t, err)

				return popular
			},
		},
		{
			name:   "equal votes picks oldest",
			policy: ports.PublishByVotes,
			setup: func(t *testing.T, f *fixture) int64 {
				first := f.create(t, "first", "")
				second := f.create(t, "second", "")
				f.store.SetCreatedAt(first, time.Now().Add(-time.Hour))
				f.store.SetCreatedAt(second, time.Now())

				return first
			},
		},
		{
			name:   "oldest policy ignores votes",
			policy: ports.PublishOldest,
			setup: func(t *testing.T, f *fixture) int64 {
				old := f.create(t, "old", "")
				popular := f.create(t, "popular", "")
				f.store.SetCreatedAt(old, time.Now().Add(-time.Hour))
				f.store.SetCreatedAt(popular, time.Now())
				_, err := f.engine.ToggleVote(context.Background(), popular, 1)
				require.NoError(t, err)

				return old
			},
		},
		{
			name:   "scheduled goes first",
			policy: ports.PublishByVotes,
			setup: func(t *testing.T, f *fixture) int64 {
				popular := f.create(t, "popular", "")
				_, err := f.engine.ToggleVote(context.Background(), popular, 1)
				require.NoError(t, err)

				return f.create(t, "scheduled", domain.StatusScheduled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{PublishPolicy: tt.policy})
			want := tt.setup(t, f)

			require.NoError(t, f.sweeper.AutoPublish(context.Background()))

			assert.Equal(t, domain.StatusPosted, f.status(t, want))
			assert.Equal(t, 1, f.store.BindingCount())
		})
	}
}

func TestAutoPublishNothingQueued(t *testing.T) {
	f := newFixture(t, Config{})

	require.NoError(t, f.sweeper.AutoPublish(context.Background()))
	assert.Empty(t, f.messenger.Calls())
}

func TestAutoPublishFailure(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.create(t, "q", "")
	f.messenger.Fail("OpenTopic", mocks.ErrInjected)

	err := f.sweeper.AutoPublish(context.Background())
	require.ErrorIs(t, err, mocks.ErrInjected)
	assert.Equal(t, domain.StatusVoting, f.status(t, id))
}

func TestAutoPublishPreconditionIsNotFailure(t *testing.T) {
	store := &staticStore{Store: mocks.NewStore(), candidate: &domain.Question{ID: 9, Status: domain.StatusVoting}}
	engine := &fakeLifecycle{failOn: map[int64]error{9: coreerrors.ErrTransitionInProgress}}

	sw := New(store, engine, Config{}, nil)

	require.NoError(t, sw.AutoPublish(context.Background()))
	assert.Equal(t, []int64{9}, engine.publish)
}

func TestRunClosesOnStart(t *testing.T) {
	store := &staticStore{Store: mocks.NewStore(), due: []int64{5}}
	engine := &fakeLifecycle{}
	sw := New(store, engine, Config{AutoCloseInterval: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := sw.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	engine.mu.Lock()
	defer engine.mu.Unlock()

	assert.Equal(t, []int64{5}, engine.closed)
	assert.Empty(t, engine.publish)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ports.PublishPolicy
		wantErr bool
	}{
		{in: "", want: ports.PublishByVotes},
		{in: "votes", want: ports.PublishByVotes},
		{in: "oldest", want: ports.PublishOldest},
		{in: "random", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, coreerrors.ErrInvalidInput)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
