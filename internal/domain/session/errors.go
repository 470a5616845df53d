package session

import "errors"

// Sentinel kinds for session errors.
var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionEnded   = errors.New("session already ended")
	ErrNilOrder       = errors.New("order is nil")
	ErrDuplicateOrder = errors.New("order already in session")
	ErrUnknownOrder   = errors.New("order not in session")
)
