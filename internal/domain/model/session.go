package model

import "time"

// Session statuses.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Trip phases group multi-order trips within a session.
const (
	TripCollecting = "collecting"
	TripDelivering = "delivering"
)

// Session is one driving shift.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Status    string     `json:"status"`
	OrderIDs  []string   `json:"order_ids"`

	TotalOrders   int     `json:"total_orders"`
	TotalEarnings float64 `json:"total_earnings"`
	TotalHours    float64 `json:"total_hours"`
	AverageScore  float64 `json:"average_score"`

	TripPhase    string     `json:"trip_phase"`
	DelayedDueAt *time.Time `json:"delayed_due_at,omitempty"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.OrderIDs = append([]string(nil), s.OrderIDs...)
	c.EndTime = cloneTime(s.EndTime)
	c.DelayedDueAt = cloneTime(s.DelayedDueAt)
	return &c
}

// Owns reports whether the order id belongs to the session.
func (s *Session) Owns(orderID string) bool {
	for _, id := range s.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}
