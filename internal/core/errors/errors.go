// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrQuestionNotFound indicates the question does not exist.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrBindingNotFound indicates the question has no discussion thread.
	ErrBindingNotFound = errors.New("discussion thread not found")
)

// Precondition errors. A transition rejected with one of these leaves no partial state.
var (
	// ErrInvalidTransition indicates the requested status change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyPublished indicates a discussion thread is already bound to the question.
	ErrAlreadyPublished = errors.New("question already has a discussion thread")

	// ErrAnswerRequired indicates archiving was attempted without a non-empty answer.
	ErrAnswerRequired = errors.New("cannot archive without an answer")

	// ErrNoOpenDiscussion indicates the discussion thread is already closed.
	ErrNoOpenDiscussion = errors.New("discussion thread is not open")

	// ErrStatusConflict indicates another writer changed the status first.
	ErrStatusConflict = errors.New("question status changed concurrently")

	// ErrTransitionInProgress indicates another transition holds the question lock.
	ErrTransitionInProgress = errors.New("another transition is in progress")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyBody indicates a question body is missing.
	ErrEmptyBody = errors.New("question body is required")

	// ErrUnknownModule indicates a module id does not reference a known module.
	ErrUnknownModule = errors.New("unknown module")

	// ErrUnknownStatus indicates a status string outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrForbidden indicates the caller is not allowed to perform a privileged action.
	ErrForbidden = errors.New("forbidden")
)

// Collaborator errors.
var (
	// ErrUnavailable indicates an optional collaborator is not configured or not reachable.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// IsPrecondition reports whether err is a rejected precondition rather than an infrastructure failure.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrInvalidTransition, ErrAlreadyPublished, ErrAnswerRequired, ErrNoOpenDiscussion,
		ErrStatusConflict, ErrTransitionInProgress, ErrInvalidInput, ErrEmptyBody,
		ErrUnknownModule, ErrUnknownStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
