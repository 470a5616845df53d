package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrSessionActive = errors.New("a session is already active")
	ErrInvalidOrder  = errors.New("invalid order")
)
