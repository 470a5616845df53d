package repository

import "errors"

// Sentinel kinds for history errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidLimit        = errors.New("invalid limit")
	ErrInvalidRecord       = errors.New("invalid record")
	ErrOrderFinalized      = errors.New("order is finalized")
	ErrActiveSessionExists = errors.New("user already has an active session")
)
