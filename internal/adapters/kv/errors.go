package kv

import "errors"

// Sentinel kinds for key-value errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrCorrupt    = errors.New("stored value is corrupt")
	ErrInvalidKey = errors.New("invalid key")
)
