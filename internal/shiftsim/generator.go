package shiftsim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/okian/offerwise/pkg/logger"
)

// Generation ranges.
const (
	payoutMin       = 4.0
	payoutRange     = 36.0
	milesMin        = 0.8
	milesRange      = 11.0
	minutesPerMile  = 4.0
	minutesOverhead = 8.0
	multiStopChance = 0.2
	skipChance      = 0.15
	tipChance       = 0.35
	tipMax          = 8.0
	shiftStartHour  = 10
	shiftHours      = 11
)

var (
	zones = []string{"Downtown", "University", "Midtown", "Airport", "Suburbs", "Harbor", "Old Town"}
	days  = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
)

// generateOffers builds n offers from the seed. The same seed always yields
// the same shift.
func generateOffers(ctx context.Context, cfg *Config, stats *Stats) []Offer {
	logger.Get().Info(ctx, "generating offers", logger.Int("offers", cfg.Offers))

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // simulation, not security
	day := days[rng.IntN(len(days))]

	offers := make([]Offer, cfg.Offers)
	for i := range offers {
		offers[i] = generateOffer(rng, i, cfg.Offers, day)
	}
	stats.OffersGenerated = len(offers)
	return offers
}

func generateOffer(rng *rand.Rand, index, total int, day string) Offer {
	stops := 1
	if rng.Float64() < multiStopChance {
		stops = 2 + rng.IntN(2)
	}
	miles := round2(milesMin + rng.Float64()*milesRange)
	minutes := math.Round(miles*minutesPerMile + minutesOverhead + rng.Float64()*10*float64(stops))
	payout := round2(payoutMin + rng.Float64()*payoutRange + float64(stops-1)*4)

	// offers spread evenly over the shift window
	minuteOfShift := index * shiftHours * 60 / max(total, 1)
	hour := shiftStartHour + minuteOfShift/60

	actual := payout
	if rng.Float64() < tipChance {
		actual = round2(actual + rng.Float64()*tipMax)
	}

	return Offer{
		NumberOfStops:      stops,
		ShownPayout:        payout,
		Miles:              miles,
		EstimatedMinutes:   minutes,
		PickupZone:         zones[rng.IntN(len(zones))],
		DropoffZone:        zones[rng.IntN(len(zones))],
		LocalTime:          fmt.Sprintf("%02d:%02d", hour%24, minuteOfShift%60),
		DayOfWeek:          day,
		ActualPay:          actual,
		ActualTotalMinutes: math.Round(minutes * (0.85 + rng.Float64()*0.4)),
		SkipDelayed:        rng.Float64() < skipChance,
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
