// Package session folds a driver's orders into shift totals.
//
// Totals are always derivable from the owned orders: AddOrder and
// UpdateOrder refresh sums incrementally while Recalculate rebuilds the
// whole session, average score included.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/offerwise/internal/domain/model"
)

const (
	defaultDelayedSurveyAfter = 2 * time.Hour
	minutesPerHour            = 60.0
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithDelayedSurveyAfter sets how long after End the session survey is due.
func WithDelayedSurveyAfter(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.delayedAfter = d
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(a *Aggregator) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// Aggregator computes session totals. It holds no session state itself.
type Aggregator struct {
	delayedAfter time.Duration
	newID        func() string
}

// NewAggregator creates an aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		delayedAfter: defaultDelayedSurveyAfter,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start opens a new active session.
func (a *Aggregator) Start(userID string, now time.Time) *model.Session {
	return &model.Session{
		ID:        a.newID(),
		UserID:    userID,
		StartTime: now.UTC(),
		Status:    model.SessionActive,
		OrderIDs:  []string{},
		TripPhase: model.TripCollecting,
	}
}

// AddOrder appends newOrder to the session and refreshes sums over orders
// plus newOrder. The average score is left alone.
func (a *Aggregator) AddOrder(s *model.Session, orders []*model.Order, newOrder *model.Order) (*model.Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.Status == model.SessionEnded {
		return nil, ErrSessionEnded
	}
	if newOrder == nil {
		return nil, ErrNilOrder
	}
	if s.Owns(newOrder.ID) {
		return nil, ErrDuplicateOrder
	}

	out := s.Clone()
	out.OrderIDs = append(out.OrderIDs, newOrder.ID)
	out.TotalOrders++
	out.TotalEarnings, out.TotalHours = sums(owned(out, append(append([]*model.Order(nil), orders...), newOrder)))
	return out, nil
}

// UpdateOrder refreshes sums after an owned order changed, typically once its
// delayed survey recorded actual pay. The order count does not change.
func (a *Aggregator) UpdateOrder(s *model.Session, orders []*model.Order, updated *model.Order) (*model.Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if updated == nil {
		return nil, ErrNilOrder
	}
	if !s.Owns(updated.ID) {
		return nil, ErrUnknownOrder
	}

	merged := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if o != nil && o.ID == updated.ID {
			continue
		}
		merged = append(merged, o)
	}
	merged = append(merged, updated)

	out := s.Clone()
	out.TotalEarnings, out.TotalHours = sums(owned(out, merged))
	return out, nil
}

// Recalculate rebuilds every total from the owned orders.
func (a *Aggregator) Recalculate(s *model.Session, orders []*model.Order) (*model.Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	mine := owned(s, orders)

	out := s.Clone()
	out.TotalOrders = len(mine)
	out.TotalEarnings, out.TotalHours = sums(mine)
	out.AverageScore = 0
	if len(mine) > 0 {
		var total float64
		for _, o := range mine {
			total += o.Score.Value
		}
		out.AverageScore = total / float64(len(mine))
	}
	return out, nil
}

// End closes the session and stamps when its survey becomes due.
func (a *Aggregator) End(s *model.Session, now time.Time) (*model.Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.Status == model.SessionEnded {
		return nil, ErrSessionEnded
	}
	out := s.Clone()
	end := now.UTC()
	due := end.Add(a.delayedAfter)
	out.EndTime = &end
	out.Status = model.SessionEnded
	out.DelayedDueAt = &due
	return out, nil
}

// SetTripPhase records whether the driver is collecting or delivering.
func (a *Aggregator) SetTripPhase(s *model.Session, phase string) *model.Session {
	if s == nil || s.TripPhase == phase {
		return s
	}
	out := s.Clone()
	out.TripPhase = phase
	return out
}

// owned keeps the orders the session owns, deduplicated by id with later
// entries winning.
func owned(s *model.Session, orders []*model.Order) []*model.Order {
	byID := make(map[string]*model.Order, len(orders))
	for _, o := range orders {
		if o != nil && s.Owns(o.ID) {
			byID[o.ID] = o
		}
	}
	out := make([]*model.Order, 0, len(byID))
	for _, id := range s.OrderIDs {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

func sums(orders []*model.Order) (earnings, hours float64) {
	var minutes float64
	for _, o := range orders {
		earnings += o.Earnings()
		minutes += o.Minutes()
	}
	return earnings, minutes / minutesPerHour
}
