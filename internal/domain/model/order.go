// Package model contains domain models passed between layers.
package model

import "time"

// Recommendation labels.
const (
	RecommendTake    = "take"
	RecommendDecline = "decline"
)

// Order statuses mirror the lifecycle step that last touched the order.
const (
	OrderStatusActive    = "active"
	OrderStatusDelivered = "delivered"
	OrderStatusComplete  = "complete"
	OrderStatusExpired   = "expired"
)

// Score is the desirability verdict attached to every order.
type Score struct {
	Value          float64   `json:"value"`           // 1..10, multiple of 0.5
	Recommendation string    `json:"recommendation"`  // take | decline
	QuickScore     int       `json:"quick_score"`     // live 1..4 scale
	QuickDecision  string    `json:"quick_decision"`  // take | decline on the 1..4 scale
	Algorithm      string    `json:"algorithm"`       // heuristic | weighted
	WeightVersion  int       `json:"weight_version"`  // 0 when the heuristic was used
	ScoredAt       time.Time `json:"scored_at"`
}

// Ratings holds the post-hoc qualitative survey answers.
//
// Parking, dropoff difficulty and end-zone quality use a 1..3 scale
// (1 = hard/poor, 3 = easy/good). The remaining three use 1..5 and are only
// meaningful for multi-stop orders; they stay nil when NumberOfStops == 1.
type Ratings struct {
	ParkingDifficulty  *int `json:"parking_difficulty,omitempty"`
	DropoffDifficulty  *int `json:"dropoff_difficulty,omitempty"`
	EndZoneQuality     *int `json:"end_zone_quality,omitempty"`
	RouteCohesion      *int `json:"route_cohesion,omitempty"`
	DropoffCompression *int `json:"dropoff_compression,omitempty"`
	NextOrderMomentum  *int `json:"next_order_momentum,omitempty"`
}

// HasMultiStop reports whether any multi-stop-only field is set.
func (r Ratings) HasMultiStop() bool {
	return r.RouteCohesion != nil || r.DropoffCompression != nil || r.NextOrderMomentum != nil
}

// Order is one delivery offer and, once accepted, the trip that follows.
type Order struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`

	// Offer facts.
	NumberOfStops    int     `json:"number_of_stops"`
	ShownPayout      float64 `json:"shown_payout"`
	Miles            float64 `json:"miles"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	PickupZone       string  `json:"pickup_zone"`
	DropoffZone      string  `json:"dropoff_zone,omitempty"`
	LocalTime        string  `json:"local_time,omitempty"` // "HH:MM"
	DayOfWeek        string  `json:"day_of_week,omitempty"`
	Weather          string  `json:"weather,omitempty"`

	// Lifecycle timestamps.
	OfferedAt         time.Time  `json:"offered_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	PickupStartAt     *time.Time `json:"pickup_start_at,omitempty"`
	WaitStartAt       *time.Time `json:"wait_start_at,omitempty"`
	WaitEndAt         *time.Time `json:"wait_end_at,omitempty"`
	ActualStartAt     *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt       *time.Time `json:"actual_end_at,omitempty"`
	ImmediateSurveyAt *time.Time `json:"immediate_survey_at,omitempty"`
	DelayedSurveyAt   *time.Time `json:"delayed_survey_at,omitempty"`
	DelayedDueAt      *time.Time `json:"delayed_due_at,omitempty"`

	WaitTimeAtRestaurant float64 `json:"wait_time_at_restaurant,omitempty"` // minutes
	PickedUpCount        int     `json:"picked_up_count"`

	Ratings Ratings `json:"ratings"`

	// Financial actuals, filled by the delayed survey.
	ActualPay          *float64 `json:"actual_pay,omitempty"`
	ActualTotalMinutes *float64 `json:"actual_total_minutes,omitempty"`

	Score  Score  `json:"score"`
	Status string `json:"status"`
}

// Earnings returns the realised pay when known, otherwise the offered payout.
func (o *Order) Earnings() float64 {
	if o.ActualPay != nil {
		return *o.ActualPay
	}
	return o.ShownPayout
}

// Minutes returns the realised trip minutes when known, otherwise the estimate.
func (o *Order) Minutes() float64 {
	if o.ActualTotalMinutes != nil {
		return *o.ActualTotalMinutes
	}
	return o.EstimatedMinutes
}

// IsMultiStop reports whether the order has more than one stop.
func (o *Order) IsMultiStop() bool { return o.NumberOfStops > 1 }

// Final reports whether the order no longer accepts mutations.
func (o *Order) Final() bool {
	return o.Status == OrderStatusComplete || o.Status == OrderStatusExpired
}

// Clone returns a deep copy so callers can't mutate shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.AcceptedAt = cloneTime(o.AcceptedAt)
	c.PickupStartAt = cloneTime(o.PickupStartAt)
	c.WaitStartAt = cloneTime(o.WaitStartAt)
	c.WaitEndAt = cloneTime(o.WaitEndAt)
	c.ActualStartAt = cloneTime(o.ActualStartAt)
	c.ActualEndAt = cloneTime(o.ActualEndAt)
	c.ImmediateSurveyAt = cloneTime(o.ImmediateSurveyAt)
	c.DelayedSurveyAt = cloneTime(o.DelayedSurveyAt)
	c.DelayedDueAt = cloneTime(o.DelayedDueAt)
	c.ActualPay = cloneFloat(o.ActualPay)
	c.ActualTotalMinutes = cloneFloat(o.ActualTotalMinutes)
	c.Ratings = Ratings{
		ParkingDifficulty:  cloneInt(o.Ratings.ParkingDifficulty),
		DropoffDifficulty:  cloneInt(o.Ratings.DropoffDifficulty),
		EndZoneQuality:     cloneInt(o.Ratings.EndZoneQuality),
		RouteCohesion:      cloneInt(o.Ratings.RouteCohesion),
		DropoffCompression: cloneInt(o.Ratings.DropoffCompression),
		NextOrderMomentum:  cloneInt(o.Ratings.NextOrderMomentum),
	}
	return &c
}

// TimePtr is a small helper for optional timestamps.
func TimePtr(t time.Time) *time.Time { return &t }

// FloatPtr is a small helper for optional numbers.
func FloatPtr(f float64) *float64 { return &f }

// IntPtr is a small helper for optional ratings.
func IntPtr(i int) *int { return &i }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
