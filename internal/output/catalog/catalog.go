// Package catalog assembles the question listing and detail views served to the
// web layer: ranked questions with the viewer's vote, modules, topic link and
// body and answer previews.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
)

const (
	// PreviewRunes bounds body and answer previews.
	PreviewRunes = 300

	last30Limit = 30

	supergroupPrefix = "-100"
)

// Period narrows the listing by creation time.
type Period string

// Listing periods.
const (
	PeriodAll    Period = "all"
	PeriodLast30 Period = "last30"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodYear   Period = "year"
)

// ParsePeriod validates a period name. An empty name means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodLast30, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("period %q: %w", s, coreerrors.ErrInvalidInput)
	}
}

// apply sets the time bound or the result cap of the period.
func (p Period) apply(filter *ports.QuestionFilter, now time.Time) {
	switch p {
	case PeriodWeek:
		filter.Since = now.AddDate(0, 0, -7)
	case PeriodMonth:
		filter.Since = now.AddDate(0, 0, -30)
	case PeriodYear:
		filter.Since = now.AddDate(0, 0, -365)
	case PeriodLast30:
		filter.Limit = last30Limit
	}
}

// Store is the read side the catalog needs.
type Store interface {
	ports.CatalogRepository
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	GetAnswer(ctx context.Context, questionID int64) (*domain.Answer, error)
	GetBinding(ctx context.Context, questionID int64) (*domain.DiscussionBinding, error)
	VotedQuestionIDs(ctx context.Context, voterID int64, questionIDs []int64) (map[int64]bool, error)
}

// SimilarFinder returns ids of questions similar to one question.
type SimilarFinder interface {
	Similar(ctx context.Context, questionID int64) ([]int64, error)
}

// Query selects the listing. ViewerID 0 means an anonymous viewer.
type Query struct {
	ModuleID int64
	Status   domain.Status
	Period   Period
	ViewerID int64
}

// ModuleView is a module attached to a question.
type ModuleView struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	IsPrimary bool   `json:"is_primary"`
}

// Item is one question of the listing.
type Item struct {
	ID            int64        `json:"id"`
	Title         string       `json:"title"`
	BodyPreview   string       `json:"body_preview"`
	Status        string       `json:"status"`
	StatusLabel   string       `json:"status_label"`
	VotesCount    int          `json:"votes_count"`
	MyVote        bool         `json:"my_vote"`
	Modules       []ModuleView `json:"modules"`
	AnswerPreview string       `json:"summary,omitempty"`
	TopicLink     string       `json:"telegram_link,omitempty"`
	MessagesCount int          `json:"messages_count"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Detail is the full view of one question.
type Detail struct {
	Item

	Body          string                `json:"body"`
	AnswerSummary string                `json:"answer_summary,omitempty"`
	AnswerText    string                `json:"answer,omitempty"`
	Sources       []domain.AnswerSource `json:"sources,omitempty"`
	Similar       []int64               `json:"similar"`
}

// Catalog serves read views. It is safe for concurrent use.
type Catalog struct {
	store   Store
	similar SimilarFinder
	now     func() time.Time
}

// New creates a Catalog. similar may be nil.
func New(store Store, similar SimilarFinder) *Catalog {
	return &Catalog{store: store, similar: similar, now: time.Now}
}

// List returns questions ordered by votes desc, then newest first.
func (c *Catalog) List(ctx context.Context, q Query) ([]Item, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", q.Status, coreerrors.ErrUnknownStatus)
	}

	filter := ports.QuestionFilter{ModuleID: q.ModuleID, Status: q.Status}
	q.Period.apply(&filter, c.now().UTC())

	rows, err := c.store.ListQuestions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	voted, err := c.votes(ctx, q.ViewerID, rows)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row, voted[row.Question.ID]))
	}

	return items, nil
}

// Get returns one question with its answer and similar question ids.
func (c *Catalog) Get(ctx context.Context, id, viewerID int64) (*Detail, error) {
	q, err := c.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}

	answer, err := c.store.GetAnswer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get answer of question %d: %w", id, err)
	}

	binding, err := c.store.GetBinding(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get topic of question %d: %w", id, err)
	}

	row := ports.QuestionListItem{Question: *q, Answer: answer, Binding: binding}

	voted, err := c.votes(ctx, viewerID, []ports.QuestionListItem{row})
	if err != nil {
		return nil, err
	}

	detail := &Detail{Item: toItem(row, voted[id]), Body: q.Body, Similar: []int64{}}

	if answer != nil {
		detail.AnswerSummary = answer.Summary
		detail.AnswerText = answer.Text
		detail.Sources = answer.Sources
	}

	if c.similar != nil {
		similar, err := c.similar.Similar(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("similar questions of %d: %w", id, err)
		}

		detail.Similar = similar
	}

	return detail, nil
}

func (c *Catalog) votes(ctx context.Context, viewerID int64, rows []ports.QuestionListItem) (map[int64]bool, error) {
	if viewerID == 0 || len(rows) == 0 {
		return map[int64]bool{}, nil
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.Question.ID
	}

	voted, err := c.store.VotedQuestionIDs(ctx, viewerID, ids)
	if err != nil {
		return nil, fmt.Errorf("viewer votes: %w", err)
	}

	return voted, nil
}

func toItem(row ports.QuestionListItem, myVote bool) Item {
	q := row.Question

	item := Item{
		ID:          q.ID,
		Title:       q.Title,
		BodyPreview: textutil.Preview(q.Body, PreviewRunes),
		Status:      string(q.Status),
		StatusLabel: q.Status.Label(),
		VotesCount:  q.VotesCount,
		MyVote:      myVote,
		Modules:     make([]ModuleView, 0, len(q.Modules)),
		CreatedAt:   q.CreatedAt,
	}

	for _, m := range q.Modules {
		item.Modules = append(item.Modules, ModuleView{ID: m.ID, Title: m.DisplayTitle(), IsPrimary: m.IsPrimary})
	}

	if row.Answer.HasText() {
		item.AnswerPreview = textutil.Preview(row.Answer.Text, PreviewRunes)
	}

	if row.Binding != nil {
		item.TopicLink = TopicLink(row.Binding.ChatID, row.Binding.ThreadID)
		item.MessagesCount = row.Binding.MessagesCount
	}

	return item
}

// TopicLink returns the t.me link of a topic in a supergroup, or "" for other chats.
func TopicLink(chatID, threadID int64) string {
	id := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(id, supergroupPrefix) {
		return ""
	}

	return "https://t.me/c/" + strings.TrimPrefix(id, supergroupPrefix) + "/" + strconv.FormatInt(threadID, 10)
}
