// Package kv is the small durable key-value store that keeps workflow state
// across restarts. Values are JSON blobs keyed by string.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys used by the offer workflow.
const (
	KeyWorkflow         = "workflow.active"
	KeySession          = "session.current"
	KeyImmediateSurveys = "surveys.immediate"
	KeyDelayedSurveys   = "surveys.delayed"
	KeyReminders        = "reminders.pending"
	KeyWeights          = "weights.active"
)

// Store reads and writes raw values by key.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
