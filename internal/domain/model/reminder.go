package model

import "time"

// Reminder kinds handled by the unified scheduler.
const (
	ReminderOrderSurvey   = "order_survey"
	ReminderSessionSurvey = "session_survey"
)

// Reminder is a pending delayed-data request keyed by due time. It fires
// once at DueAt and is dropped at ExpiresAt if still unresolved.
type Reminder struct {
	Kind       string     `json:"kind"`
	Ref        string     `json:"ref"` // order or session id
	DueAt      time.Time  `json:"due_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// Due reports whether the reminder is due at now.
func (r Reminder) Due(now time.Time) bool { return !now.Before(r.DueAt) }

// Expired reports whether the reminder window closed at now.
func (r Reminder) Expired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return r.Due(now)
	}
	return !now.Before(r.ExpiresAt)
}
