package domain

import (
	"fmt"
	"strings"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

// Status is the lifecycle state of a question.
type Status string

// Lifecycle states. ARCHIVED is terminal.
const (
	StatusVoting    Status = "VOTING"
	StatusScheduled Status = "SCHEDULED"
	StatusPosted    Status = "POSTED"
	StatusClosed    Status = "CLOSED"
	StatusArchived  Status = "ARCHIVED"
)

// transitions is the only place that decides which status changes are legal.
var transitions = map[Status][]Status{
	StatusVoting:    {StatusScheduled, StatusPosted},
	StatusScheduled: {StatusPosted},
	StatusPosted:    {StatusClosed},
	StatusClosed:    {StatusArchived},
	StatusArchived:  nil,
}

var statusLabels = map[Status]string{
	StatusVoting:    "Voting",
	StatusScheduled: "Scheduled",
	StatusPosted:    "In discussion",
	StatusClosed:    "Discussion closed",
	StatusArchived:  "Answered",
}

// AllStatuses returns the lifecycle states in pipeline order.
func AllStatuses() []Status {
	return []Status{StatusVoting, StatusScheduled, StatusPosted, StatusClosed, StatusArchived}
}

// ParseStatus converts a case-insensitive string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", coreerrors.ErrUnknownStatus, s)
	}

	return st, nil
}

// Valid reports whether s is one of the lifecycle states.
func (s Status) Valid() bool {
	_, ok := transitions[s]

	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Published reports whether a discussion thread has been opened for a question in this state.
func (s Status) Published() bool {
	return s == StatusPosted || s == StatusClosed || s == StatusArchived
}

// Label returns a human readable status name.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}

	return string(s)
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// ValidateTransition returns ErrInvalidTransition wrapped with both states when from -> to is illegal.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", coreerrors.ErrInvalidTransition, from, to)
}
