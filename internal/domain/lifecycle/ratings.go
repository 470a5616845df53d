package lifecycle

import (
	"fmt"

	"github.com/okian/offerwise/internal/domain/model"
)

// ValidateRatings checks rating ranges for an order with the given stop
// count. Single-stop orders drop any multi-stop ratings; multi-stop orders
// must carry all three of them.
func ValidateRatings(stops int, r model.Ratings) (model.Ratings, error) {
	for name, v := range map[string]*int{
		"parking_difficulty": r.ParkingDifficulty,
		"dropoff_difficulty": r.DropoffDifficulty,
		"end_zone_quality":   r.EndZoneQuality,
	} {
		if v != nil && (*v < 1 || *v > 3) {
			return model.Ratings{}, fmt.Errorf("%w: %s=%d not in 1..3", ErrInvalidRatings, name, *v)
		}
	}

	if stops <= 1 {
		r.RouteCohesion, r.DropoffCompression, r.NextOrderMomentum = nil, nil, nil
		return r, nil
	}

	for name, v := range map[string]*int{
		"route_cohesion":      r.RouteCohesion,
		"dropoff_compression": r.DropoffCompression,
		"next_order_momentum": r.NextOrderMomentum,
	} {
		if v == nil {
			return model.Ratings{}, fmt.Errorf("%w: %s required for %d stops", ErrInvalidRatings, name, stops)
		}
		if *v < 1 || *v > 5 {
			return model.Ratings{}, fmt.Errorf("%w: %s=%d not in 1..5", ErrInvalidRatings, name, *v)
		}
	}
	return r, nil
}
