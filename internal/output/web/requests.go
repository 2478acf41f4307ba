package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/output/catalog"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

// user is the caller. ID 0 is an anonymous visitor.
type user struct {
	ID   int64
	Name string
}

func identify(r *http.Request) (user, error) {
	u := user{Name: strings.TrimSpace(r.Header.Get(headerUserName))}

	raw := strings.TrimSpace(r.Header.Get(headerUserID))
	if raw == "" {
		return u, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return user{}, errBadUserID
	}

	u.ID = id

	return u, nil
}

func errForbidden(userID int64) error {
	return fmt.Errorf("user %d: %w", userID, coreerrors.ErrForbidden)
}

func parseListQuery(r *http.Request) (catalog.Query, error) {
	values := r.URL.Query()

	var q catalog.Query

	if raw := values.Get("module"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return catalog.Query{}, errBadModuleID
		}

		q.ModuleID = id
	}

	q.Status = domain.Status(strings.ToUpper(strings.TrimSpace(values.Get("status"))))

	period, err := catalog.ParsePeriod(values.Get("period"))
	if err != nil {
		return catalog.Query{}, err
	}

	q.Period = period

	return q, nil
}

type moduleRequest struct {
	ID        int64 `json:"id"`
	IsPrimary bool  `json:"is_primary"`
}

type sourceRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type answerRequest struct {
	Text    string          `json:"text"`
	Summary string          `json:"summary"`
	Sources []sourceRequest `json:"sources"`
}

type questionRequest struct {
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	Status  string          `json:"status"`
	Modules []moduleRequest `json:"modules"`
	Answer  *answerRequest  `json:"answer"`
}

func decodeQuestion(r *http.Request, authorID int64) (lifecycle.QuestionInput, error) {
	var req questionRequest

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return lifecycle.QuestionInput{}, coreerrors.ErrEmptyBody
		}

		return lifecycle.QuestionInput{}, fmt.Errorf("%w: %w", errBadBody, err)
	}

	status := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return lifecycle.QuestionInput{}, fmt.Errorf("status %q: %w", req.Status, coreerrors.ErrUnknownStatus)
	}

	in := lifecycle.QuestionInput{
		Title:    req.Title,
		Body:     req.Body,
		Status:   status,
		AuthorID: authorID,
		Modules:  make([]domain.ModuleRef, 0, len(req.Modules)),
	}

	for _, m := range req.Modules {
		in.Modules = append(in.Modules, domain.ModuleRef{ModuleID: m.ID, IsPrimary: m.IsPrimary})
	}

	if req.Answer != nil {
		in.Answer = &lifecycle.AnswerInput{
			Text:     req.Answer.Text,
			Summary:  req.Answer.Summary,
			AuthorID: authorID,
		}

		for _, s := range req.Answer.Sources {
			in.Answer.Sources = append(in.Answer.Sources, domain.AnswerSource{Title: s.Title, URL: s.URL})
		}
	}

	return in, nil
}

type voteResponse struct {
	Voted      bool `json:"voted"`
	VotesCount int  `json:"votes_count"`
}

type similarResponse struct {
	QuestionID int64   `json:"question_id"`
	Similar    []int64 `json:"similar"`
}

type stepView struct {
	Step       string `json:"step"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type reportView struct {
	QuestionID int64      `json:"question_id"`
	Transition string     `json:"transition"`
	Steps      []stepView `json:"steps"`
	TopicLink  string     `json:"telegram_link,omitempty"`
}

func newReportView(report *lifecycle.TransitionReport) *reportView {
	if report == nil {
		return nil
	}

	v := &reportView{
		QuestionID: report.QuestionID,
		Transition: report.Transition,
		Steps:      make([]stepView, 0, len(report.Steps)),
	}

	for _, s := range report.Steps {
		sv := stepView{Step: s.Step, Outcome: string(s.Outcome), DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			sv.Error = s.Err.Error()
		}

		v.Steps = append(v.Steps, sv)
	}

	if report.Binding != nil {
		v.TopicLink = catalog.TopicLink(report.Binding.ChatID, report.Binding.ThreadID)
	}

	return v
}

type errorResponse struct {
	Error  string      `json:"error"`
	Report *reportView `json:"report,omitempty"`
}
