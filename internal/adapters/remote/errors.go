package remote

import (
	"errors"
	"net/http"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("remote: circuit breaker is open")
	// ErrRejected is returned for 4xx answers, which are never retried.
	ErrRejected = errors.New("remote: request rejected")
	// ErrDisabled is returned when no base URL is configured.
	ErrDisabled = errors.New("remote: sync disabled")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("remote: client closed")
)

// ServerError is a 5xx answer. It counts as a breaker failure and is retried.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "remote: server error: " + http.StatusText(e.StatusCode)
}
