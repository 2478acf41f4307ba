// Package web serves the forum JSON API: the question catalog, voting,
// discussion snapshots and the privileged lifecycle operations.
//
// Caller identity is resolved by the fronting site and arrives in the
// X-User-ID and X-User-Name headers.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/output/catalog"
	"github.com/lueurxax/question-forum/internal/process/discussion"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"

	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json; charset=utf-8"

	maxBodyBytes = 1 << 20

	rateLimitRequests = 60
	rateLimitBurst    = 30
	rateLimitWindow   = time.Minute

	logFieldRoute = "route"
)

// Lifecycle is the write side of the API.
type Lifecycle interface {
	Create(ctx context.Context, in lifecycle.QuestionInput) (*domain.Question, error)
	Edit(ctx context.Context, id int64, in lifecycle.QuestionInput) (*domain.Question, error)
	ToggleVote(ctx context.Context, questionID, voterID int64) (domain.VoteResult, error)
	Publish(ctx context.Context, questionID int64) (*lifecycle.TransitionReport, error)
	CloseDiscussion(ctx context.Context, questionID int64, actor string) (*lifecycle.TransitionReport, error)
	Archive(ctx context.Context, questionID int64) (*lifecycle.TransitionReport, error)
}

// Catalog is the read side of the API.
type Catalog interface {
	List(ctx context.Context, q catalog.Query) ([]catalog.Item, error)
	Get(ctx context.Context, id, viewerID int64) (*catalog.Detail, error)
}

// Discussions builds discussion snapshots.
type Discussions interface {
	Snapshot(ctx context.Context, questionID int64) (*discussion.Snapshot, error)
}

var (
	_ Lifecycle   = (*lifecycle.Engine)(nil)
	_ Catalog     = (*catalog.Catalog)(nil)
	_ Discussions = (*discussion.Ingestor)(nil)
)

// Handler routes /api/ requests.
type Handler struct {
	lifecycle   Lifecycle
	catalog     Catalog
	similar     catalog.SimilarFinder
	discussions Discussions
	isAdmin     func(userID int64) bool
	logger      *zerolog.Logger
	mux         *http.ServeMux

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

// NewHandler builds the API handler. isAdmin decides who may author questions
// and run transitions.
func NewHandler(lc Lifecycle, cat Catalog, similar catalog.SimilarFinder, discussions Discussions, isAdmin func(int64) bool, logger *zerolog.Logger) *Handler {
	h := &Handler{
		lifecycle:   lc,
		catalog:     cat,
		similar:     similar,
		discussions: discussions,
		isAdmin:     isAdmin,
		logger:      logger,
		mux:         http.NewServeMux(),
		limiters:    make(map[string]*rate.Limiter),
	}

	h.route("GET /api/questions", "list", h.handleList)
	h.route("POST /api/questions", "create", h.handleCreate)
	h.route("GET /api/questions/{id}", "get", h.handleGet)
	h.route("PUT /api/questions/{id}", "edit", h.handleEdit)
	h.route("GET /api/questions/{id}/similar", "similar", h.handleSimilar)
	h.route("GET /api/questions/{id}/discussion", "discussion", h.handleDiscussion)
	h.route("POST /api/questions/{id}/vote", "vote", h.handleVote)
	h.route("POST /api/questions/{id}/publish", "publish", h.handlePublish)
	h.route("POST /api/questions/{id}/close", "close", h.handleClose)
	h.route("POST /api/questions/{id}/archive", "archive", h.handleArchive)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// apiFunc writes a response and returns its status code.
type apiFunc func(w http.ResponseWriter, r *http.Request) int

func (h *Handler) route(pattern, name string, fn apiFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var status int
		if h.allowRequest(clientIP(r)) {
			status = fn(w, r)
		} else {
			status = h.writeError(w, name, errTooManyRequests)
		}

		latencyHistogram.WithLabelValues(name).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(name, strconv.Itoa(status)).Inc()
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) int {
	user, err := identify(r)
	if err != nil {
		return h.writeError(w, "list", err)
	}

	q, err := parseListQuery(r)
	if err != nil {
		return h.writeError(w, "list", err)
	}

	q.ViewerID = user.ID

	items, err := h.catalog.List(r.Context(), q)
	if err != nil {
		return h.writeError(w, "list", err)
	}

	return h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) int {
	user, id, err := h.target(r, false)
	if err != nil {
		return h.writeError(w, "get", err)
	}

	detail, err := h.catalog.Get(r.Context(), id, user.ID)
	if err != nil {
		return h.writeError(w, "get", err)
	}

	return h.writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) int {
	user, err := h.admin(r)
	if err != nil {
		return h.writeError(w, "create", err)
	}

	in, err := decodeQuestion(r, user.ID)
	if err != nil {
		return h.writeError(w, "create", err)
	}

	q, err := h.lifecycle.Create(r.Context(), in)
	if err != nil {
		return h.writeError(w, "create", err)
	}

	h.logger.Info().Int64("question_id", q.ID).Int64("author_id", user.ID).Msg("question created")

	return h.writeDetail(w, r, "create", http.StatusCreated, q.ID, user.ID)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) int {
	user, id, err := h.target(r, true)
	if err != nil {
		return h.writeError(w, "edit", err)
	}

	in, err := decodeQuestion(r, user.ID)
	if err != nil {
		return h.writeError(w, "edit", err)
	}

	if _, err := h.lifecycle.Edit(r.Context(), id, in); err != nil {
		return h.writeError(w, "edit", err)
	}

	return h.writeDetail(w, r, "edit", http.StatusOK, id, user.ID)
}

func (h *Handler) writeDetail(w http.ResponseWriter, r *http.Request, route string, status int, id, viewerID int64) int {
	detail, err := h.catalog.Get(r.Context(), id, viewerID)
	if err != nil {
		return h.writeError(w, route, err)
	}

	return h.writeJSON(w, status, detail)
}

func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) int {
	_, id, err := h.target(r, false)
	if err != nil {
		return h.writeError(w, "similar", err)
	}

	ids := []int64{}

	if h.similar != nil {
		ids, err = h.similar.Similar(r.Context(), id)
		if err != nil {
			return h.writeError(w, "similar", err)
		}
	}

	return h.writeJSON(w, http.StatusOK, similarResponse{QuestionID: id, Similar: ids})
}

func (h *Handler) handleDiscussion(w http.ResponseWriter, r *http.Request) int {
	_, id, err := h.target(r, false)
	if err != nil {
		return h.writeError(w, "discussion", err)
	}

	snap, err := h.discussions.Snapshot(r.Context(), id)
	if err != nil {
		return h.writeError(w, "discussion", err)
	}

	return h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) int {
	user, id, err := h.target(r, false)
	if err != nil {
		return h.writeError(w, "vote", err)
	}

	if user.ID == 0 {
		return h.writeError(w, "vote", errUnauthenticated)
	}

	res, err := h.lifecycle.ToggleVote(r.Context(), id, user.ID)
	if err != nil {
		return h.writeError(w, "vote", err)
	}

	return h.writeJSON(w, http.StatusOK, voteResponse{Voted: res.Voted, VotesCount: res.VotesCount})
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) int {
	return h.transition(w, r, "publish", func(ctx context.Context, id int64, _ user) (*lifecycle.TransitionReport, error) {
		return h.lifecycle.Publish(ctx, id)
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) int {
	return h.transition(w, r, "close", func(ctx context.Context, id int64, u user) (*lifecycle.TransitionReport, error) {
		return h.lifecycle.CloseDiscussion(ctx, id, u.Name)
	})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) int {
	return h.transition(w, r, "archive", func(ctx context.Context, id int64, _ user) (*lifecycle.TransitionReport, error) {
		return h.lifecycle.Archive(ctx, id)
	})
}

type transitionFunc func(ctx context.Context, id int64, u user) (*lifecycle.TransitionReport, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, route string, fn transitionFunc) int {
	u, id, err := h.target(r, true)
	if err != nil {
		return h.writeError(w, route, err)
	}

	report, err := fn(r.Context(), id, u)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str(logFieldRoute, route).Int64("question_id", id).Msg("transition failed")
		}

		return h.writeJSON(w, status, errorResponse{Error: err.Error(), Report: newReportView(report)})
	}

	h.logger.Info().
		Str(logFieldRoute, route).
		Int64("question_id", id).
		Int64("actor_id", u.ID).
		Int("failed_steps", len(report.Failed())).
		Msg("transition completed")

	return h.writeJSON(w, http.StatusOK, newReportView(report))
}

// target resolves the caller and the {id} path value. With privileged set the
// caller must be an administrator.
func (h *Handler) target(r *http.Request, privileged bool) (user, int64, error) {
	var (
		u   user
		err error
	)

	if privileged {
		u, err = h.admin(r)
	} else {
		u, err = identify(r)
	}

	if err != nil {
		return user{}, 0, err
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return user{}, 0, errBadQuestionID
	}

	return u, id, nil
}

func (h *Handler) admin(r *http.Request) (user, error) {
	u, err := identify(r)
	if err != nil {
		return user{}, err
	}

	if u.ID == 0 {
		return user{}, errUnauthenticated
	}

	if h.isAdmin == nil || !h.isAdmin(u.ID) {
		return user{}, errForbidden(u.ID)
	}

	return u, nil
}

func (h *Handler) allowRequest(ip string) bool {
	h.limitersMu.Lock()

	limiter, ok := h.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitRequests), rateLimitBurst)
		h.limiters[ip] = limiter
	}

	h.limitersMu.Unlock()

	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("write json failed")
	}

	return status
}

func (h *Handler) writeError(w http.ResponseWriter, route string, err error) int {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str(logFieldRoute, route).Msg("api request failed")
	} else {
		h.logger.Debug().Err(err).Str(logFieldRoute, route).Int("status", status).Msg("api request rejected")
	}

	return h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
