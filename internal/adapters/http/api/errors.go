package api

import (
	"errors"
	"net/http"

	"github.com/okian/offerwise/internal/adapters/repository"
	service "github.com/okian/offerwise/internal/app"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/session"
	"github.com/okian/offerwise/internal/domain/weights"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps domain errors onto HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, lifecycle.ErrInvalidOrderFields),
		errors.Is(err, lifecycle.ErrMissingScore),
		errors.Is(err, lifecycle.ErrInvalidRatings),
		errors.Is(err, lifecycle.ErrInvalidActuals),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, lifecycle.ErrSurveyNotFound),
		errors.Is(err, lifecycle.ErrNoActiveOrder),
		errors.Is(err, lifecycle.ErrNoPendingSurvey),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrOrderInProgress),
		errors.Is(err, lifecycle.ErrOrderFinalized),
		errors.Is(err, repository.ErrOrderFinalized),
		errors.Is(err, service.ErrSessionActive),
		errors.Is(err, session.ErrSessionEnded):
		return http.StatusConflict, "conflict"
	case errors.Is(err, weights.ErrNeedAtLeastOneOrder):
		return http.StatusUnprocessableEntity, "not_enough_data"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
