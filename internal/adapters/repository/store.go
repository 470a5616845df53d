// Package repository stores completed orders and ended sessions, the
// history that training and the driver's order log read from.
package repository

import (
	"context"
	"time"

	"github.com/okian/offerwise/internal/domain/model"
)

// Entry is one order's place in the score ranking.
type Entry struct {
	Rank      int       `json:"rank"`
	OrderID   string    `json:"order_id"`
	SessionID string    `json:"session_id,omitempty"`
	Score     float64   `json:"score"`
	Earnings  float64   `json:"earnings"`
	Status    string    `json:"status"`
	OfferedAt time.Time `json:"offered_at"`
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	UserID    string
	SessionID string
	Status    string
	Limit     int
}

// Store provides read/write access to order and session history.
type Store interface {
	// SaveOrder inserts or replaces an order. Returns ErrOrderFinalized when
	// the stored copy is already complete or expired.
	SaveOrder(ctx context.Context, o *model.Order) error
	// GetOrder returns ErrNotFound for unknown ids.
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// ListOrders returns matching orders, most recently offered first.
	ListOrders(ctx context.Context, f OrderFilter) ([]*model.Order, error)

	// Rank returns the order's position among all stored orders by score.
	Rank(ctx context.Context, orderID string) (Entry, error)
	// TopN returns the n best-scored orders.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// SaveSession inserts or replaces a session. Returns
	// ErrActiveSessionExists if the user already has another active one.
	SaveSession(ctx context.Context, s *model.Session) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// ListSessions returns the user's sessions, most recent first.
	ListSessions(ctx context.Context, userID string, limit int) ([]*model.Session, error)

	// Count returns the number of stored orders.
	Count(ctx context.Context) int

	Close() error
}

func entryFor(o *model.Order, rank int) Entry {
	return Entry{
		Rank:      rank,
		OrderID:   o.ID,
		SessionID: o.SessionID,
		Score:     o.Score.Value,
		Earnings:  o.Earnings(),
		Status:    o.Status,
		OfferedAt: o.OfferedAt,
	}
}
