package model

import "time"

// Feature names carried by a WeightSet.
const (
	FeatureHourlyRate      = "hourlyRate"
	FeatureMilesEfficiency = "milesEfficiency"
	FeatureStopsBonus      = "stopsBonus"
	FeatureTimeOfDay       = "timeOfDay"
	FeatureDayOfWeek       = "dayOfWeek"
	FeaturePickupZoneScore = "pickupZoneScore"
)

// FeatureNames lists the weighted features in a stable order.
var FeatureNames = []string{
	FeatureHourlyRate,
	FeatureMilesEfficiency,
	FeatureStopsBonus,
	FeatureTimeOfDay,
	FeatureDayOfWeek,
	FeaturePickupZoneScore,
}

// WeightSet maps feature names to weights that sum to 1.
type WeightSet struct {
	Weights    map[string]float64 `json:"weights"`
	Version    int                `json:"version"`
	TrainedAt  time.Time          `json:"trained_at"`
	DataPoints int                `json:"data_points"`
	Accuracy   float64            `json:"accuracy"`
}

// Get returns the weight for name, or 0 when missing.
func (w *WeightSet) Get(name string) float64 {
	if w == nil || w.Weights == nil {
		return 0
	}
	return w.Weights[name]
}

// Sum returns the total of all weights.
func (w *WeightSet) Sum() float64 {
	if w == nil {
		return 0
	}
	var s float64
	for _, v := range w.Weights {
		s += v
	}
	return s
}
