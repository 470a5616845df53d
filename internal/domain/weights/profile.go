// Package weights holds the active feature weight set: the fixed default
// profile, persistence of the active set and the training pass that derives
// a new set from historical orders.
package weights

import (
	"math"

	"github.com/okian/offerwise/internal/domain/model"
)

// DefaultProfile returns the prior weight distribution. It sums to 1.
func DefaultProfile() map[string]float64 {
	return map[string]float64{
		model.FeatureHourlyRate:      0.30,
		model.FeatureMilesEfficiency: 0.25,
		model.FeatureStopsBonus:      0.15,
		model.FeatureTimeOfDay:       0.10,
		model.FeatureDayOfWeek:       0.10,
		model.FeaturePickupZoneScore: 0.10,
	}
}

// Normalize rescales w so the known features sum to 1. Negative or
// non-finite entries count as 0; an all-zero map yields the default profile.
func Normalize(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(model.FeatureNames))
	var total float64
	for _, name := range model.FeatureNames {
		v := w[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			v = 0
		}
		out[name] = v
		total += v
	}
	if total <= 0 {
		return DefaultProfile()
	}
	for name, v := range out {
		out[name] = v / total
	}
	return out
}
