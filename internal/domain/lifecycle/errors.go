package lifecycle

import "errors"

// Sentinel kinds for workflow errors.
var (
	ErrNoActiveOrder      = errors.New("no active order")
	ErrOrderInProgress    = errors.New("another order is in progress")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrMissingScore       = errors.New("order has no score")
	ErrInvalidRatings     = errors.New("invalid ratings")
	ErrInvalidActuals     = errors.New("invalid actuals")
	ErrNoPendingSurvey    = errors.New("no pending survey")
	ErrSurveyNotFound     = errors.New("survey not found")
	ErrOrderFinalized     = errors.New("order is finalized")
	ErrResume             = errors.New("cannot resume workflow")
	ErrInvalidOrderFields = errors.New("invalid order fields")
)
