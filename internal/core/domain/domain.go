// Package domain holds the entities of the question lifecycle: questions,
// votes, module tags, discussion threads and their messages, answers and embeddings.
package domain

import "time"

// Question is a course question moving through the lifecycle.
type Question struct {
	ID         int64
	Title      string
	Body       string
	Status     Status
	AuthorID   int64 // 0 when unknown
	VotesCount int
	CreatedAt  time.Time
	PostedAt   time.Time
	ClosedAt   time.Time
	ArchivedAt time.Time

	// Modules are ordered primary first, then by position.
	Modules []Module
}

// DisplayTitle returns the title, or the body when no title is set.
func (q Question) DisplayTitle() string {
	if q.Title != "" {
		return q.Title
	}

	return q.Body
}

// ModuleIDs returns the ids of the attached modules in order.
func (q Question) ModuleIDs() []int64 {
	ids := make([]int64, 0, len(q.Modules))
	for _, m := range q.Modules {
		ids = append(ids, m.ID)
	}

	return ids
}

// Module is a course-section tag. Modules are owned by the course sync and read-only here.
type Module struct {
	ID         int64
	Title      string
	ShortTitle string
	// Icon is the custom emoji id used as the forum topic icon.
	Icon string

	// IsPrimary is set when the module is loaded through a question association.
	IsPrimary bool
}

// DisplayTitle prefers the short title.
func (m Module) DisplayTitle() string {
	if m.ShortTitle != "" {
		return m.ShortTitle
	}

	return m.Title
}

// ModuleRef attaches a module to a question.
type ModuleRef struct {
	ModuleID  int64
	IsPrimary bool
}

// Vote is one voter's support for a question.
type Vote struct {
	QuestionID int64
	VoterID    int64
	VotedAt    time.Time
}

// VoteResult is returned by a vote toggle.
type VoteResult struct {
	Voted      bool
	VotesCount int
}

// DiscussionBinding ties a question to its forum thread.
type DiscussionBinding struct {
	ID               int64
	QuestionID       int64
	ChatID           int64
	ThreadID         int64
	OpeningMessageID int64
	ClosingMessageID int64
	AnswerMessageID  int64
	MessagesCount    int
	OpenedAt         time.Time
	CloseAt          time.Time
	ClosedAt         time.Time
}

// IsOpen reports whether the thread has not been closed yet.
func (b DiscussionBinding) IsOpen() bool {
	return b.ClosedAt.IsZero()
}

// DiscussionMessage is a message ingested from a forum thread.
type DiscussionMessage struct {
	ChatID           int64
	MessageID        int64
	ThreadID         int64
	AuthorID         int64
	AuthorName       string
	Text             string
	ReplyToMessageID int64 // 0 when the message is not a reply inside the thread
	ReactionCount    int
	CreatedAt        time.Time
	EditedAt         time.Time
}

// AnswerSource is a reference attached to an answer.
type AnswerSource struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Answer is the final answer to a question.
type Answer struct {
	QuestionID          int64
	Summary             string
	Text                string
	Sources             []AnswerSource
	AuthorID            int64
	PublishedToTelegram bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasText reports whether the answer body is non-blank.
func (a *Answer) HasText() bool {
	if a == nil {
		return false
	}

	for _, r := range a.Text {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}

	return false
}

// Embedding is the vector representation of a question and the text it was computed from.
type Embedding struct {
	QuestionID int64
	Vector     []float32
	SourceText string
	UpdatedAt  time.Time
}
