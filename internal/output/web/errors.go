package web

import (
	"errors"
	"fmt"
	"net/http"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/process/lifecycle"
)

var (
	errUnauthenticated = errors.New("X-User-ID header is required")
	errTooManyRequests = errors.New("too many requests")
	errBadUserID       = fmt.Errorf("%w: X-User-ID must be an integer", coreerrors.ErrInvalidInput)
	errBadQuestionID   = fmt.Errorf("%w: question id must be a positive integer", coreerrors.ErrInvalidInput)
	errBadModuleID     = fmt.Errorf("%w: module must be an integer", coreerrors.ErrInvalidInput)
	errBadBody         = fmt.Errorf("%w: malformed JSON body", coreerrors.ErrInvalidInput)
)

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	var (
		stepErr   *lifecycle.StepError
		orphanErr *lifecycle.OrphanedThreadError
	)

	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, coreerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, coreerrors.ErrEmptyBody),
		errors.Is(err, coreerrors.ErrUnknownModule),
		errors.Is(err, coreerrors.ErrUnknownStatus),
		errors.Is(err, coreerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, coreerrors.ErrQuestionNotFound), errors.Is(err, coreerrors.ErrNotFound):
		return http.StatusNotFound
	case coreerrors.IsPrecondition(err), errors.Is(err, coreerrors.ErrBindingNotFound):
		return http.StatusConflict
	case errors.As(err, &orphanErr), errors.As(err, &stepErr):
		return http.StatusBadGateway
	case errors.Is(err, coreerrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
