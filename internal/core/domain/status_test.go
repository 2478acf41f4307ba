package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

func TestCanTransitionAdjacency(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusVoting, StatusScheduled}: true,
		{StatusVoting, StatusPosted}:    true,
		{StatusScheduled, StatusPosted}: true,
		{StatusPosted, StatusClosed}:    true,
		{StatusClosed, StatusArchived}:  true,
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := legal[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, coreerrors.ErrInvalidTransition), "%s -> %s", from, to)
			}
		}
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	order := AllStatuses()
	for i, from := range order {
		for _, to := range order[:i+1] {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" posted ")
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, st)

	_, err = ParseStatus("DELETED")
	assert.ErrorIs(t, err, coreerrors.ErrUnknownStatus)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusArchived.Terminal())
	assert.False(t, StatusClosed.Terminal())
	assert.False(t, Status("bogus").Terminal())
	assert.True(t, StatusClosed.Published())
	assert.False(t, StatusScheduled.Published())
	assert.Equal(t, "Answered", StatusArchived.Label())
	assert.Equal(t, "bogus", Status("bogus").Label())
}

func TestAnswerHasText(t *testing.T) {
	var nilAnswer *Answer
	assert.False(t, nilAnswer.HasText())
	assert.False(t, (&Answer{Text: " \n\t"}).HasText())
	assert.True(t, (&Answer{Text: " yes "}).HasText())
}

func TestReactionDelta(t *testing.T) {
	assert.Equal(t, 3, ReactionDeltaEvent{OldCount: 2, NewCount: 5}.Delta())
	assert.Equal(t, -1, ReactionDeltaEvent{OldCount: 1, NewCount: 0}.Delta())
}
