package lifecycle

import (
	"fmt"
	"time"

	"github.com/lueurxax/question-forum/internal/core/domain"
)

// Outcome classifies one external step of a transition.
type Outcome string

const (
	// OutcomeSuccess means the step completed.
	OutcomeSuccess Outcome = "success"
	// OutcomeRecoverable means the step failed and the transition continued.
	OutcomeRecoverable Outcome = "recoverable"
	// OutcomeFatal means the step failed and the transition stopped without a status change.
	OutcomeFatal Outcome = "fatal"
)

// Step names.
const (
	StepOpenTopic    = "open_topic"
	StepSendQuestion = "send_question"
	StepSendNotice   = "send_close_notice"
	StepCloseTopic   = "close_topic"
	StepReopenTopic  = "reopen_topic"
	StepSendAnswer   = "send_answer"
	StepPersist      = "persist"
)

// StepResult records one external call.
type StepResult struct {
	Step     string        `json:"step"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// TransitionReport lists the steps a transition performed.
type TransitionReport struct {
	QuestionID int64        `json:"question_id"`
	Transition string       `json:"transition"`
	Steps      []StepResult `json:"steps"`

	// Binding is set by a successful publish.
	Binding *domain.DiscussionBinding `json:"binding,omitempty"`
}

func (r *TransitionReport) add(step string, outcome Outcome, err error, d time.Duration) {
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: outcome, Err: err, Duration: d})
}

// Failed returns the steps that did not succeed.
func (r *TransitionReport) Failed() []StepResult {
	var out []StepResult

	for _, s := range r.Steps {
		if s.Outcome != OutcomeSuccess {
			out = append(out, s)
		}
	}

	return out
}

// StepError is returned when a fatal step stops a transition.
type StepError struct {
	Transition string
	Step       string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s failed: %v", e.Transition, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// OrphanedThreadError reports a thread that exists in the chat but is not bound
// to its question. An operator has to bind or delete it.
type OrphanedThreadError struct {
	QuestionID int64
	ChatID     int64
	ThreadID   int64
	Err        error
}

func (e *OrphanedThreadError) Error() string {
	return fmt.Sprintf("question %d: thread %d in chat %d left unbound: %v", e.QuestionID, e.ThreadID, e.ChatID, e.Err)
}

func (e *OrphanedThreadError) Unwrap() error { return e.Err }
