// Package shiftsim drives a synthetic driver shift against a running
// offerwise server: offers, workflow steps, both surveys, training and the
// session close.
package shiftsim

import "time"

// Config holds configuration for a simulated shift.
type Config struct {
	BaseURL    string        // Base URL of the service
	Offers     int           // Number of offers to play through
	Seed       uint64        // Random seed; the same seed replays the same shift
	Timeout    time.Duration // HTTP request timeout
	Retries    uint64        // Retries per request on connection errors
	OutputFile string        // Output file for the generated offers
	LogFile    string        // Log file for the run
	Verbose    bool          // Log every offer
}

// Offer is one generated offer and the driver's eventual outcome for it.
type Offer struct {
	NumberOfStops    int     `json:"number_of_stops"`
	ShownPayout      float64 `json:"shown_payout"`
	Miles            float64 `json:"miles"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	PickupZone       string  `json:"pickup_zone"`
	DropoffZone      string  `json:"dropoff_zone,omitempty"`
	LocalTime        string  `json:"local_time"`
	DayOfWeek        string  `json:"day_of_week"`

	// Driver-side outcome, not sent with the offer.
	ActualPay          float64 `json:"-"`
	ActualTotalMinutes float64 `json:"-"`
	SkipDelayed        bool    `json:"-"`
}

// Score mirrors the score returned by the service.
type Score struct {
	Value          float64 `json:"value"`
	Recommendation string  `json:"recommendation"`
	QuickScore     int     `json:"quick_score"`
	QuickDecision  string  `json:"quick_decision"`
	Algorithm      string  `json:"algorithm"`
}

// Order mirrors the order fields the simulator reads back.
type Order struct {
	ID            string   `json:"id"`
	NumberOfStops int      `json:"number_of_stops"`
	ShownPayout   float64  `json:"shown_payout"`
	ActualPay     *float64 `json:"actual_pay,omitempty"`
	Score         Score    `json:"score"`
	Status        string   `json:"status"`
}

// Result mirrors a workflow transition result.
type Result struct {
	Step   string `json:"step"`
	Screen string `json:"screen"`
	Order  *Order `json:"order,omitempty"`
}

// Session mirrors the session totals.
type Session struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	TotalOrders   int     `json:"total_orders"`
	TotalEarnings float64 `json:"total_earnings"`
	TotalHours    float64 `json:"total_hours"`
	AverageScore  float64 `json:"average_score"`
}

// Entry mirrors a ranked history entry.
type Entry struct {
	Rank    int     `json:"rank"`
	OrderID string  `json:"order_id"`
	Score   float64 `json:"score"`
}

// Stats holds run statistics.
type Stats struct {
	OffersGenerated int
	Taken           int
	Declined        int
	DelayedAnswered int
	DelayedSkipped  int
	Failed          int
	Expected        float64 // earnings the driver should see on the session
	Session         *Session
	WeightVersion   int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
