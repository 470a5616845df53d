// Package features turns raw order fields into the fixed feature vector
// consumed by the scoring engine.
package features

import (
	"math"
	"strconv"
	"strings"

	"github.com/okian/offerwise/internal/domain/model"
)

// Normalisation ceilings and zero-guard substitutes.
const (
	hourlyRateCeiling = 50.0 // $/hr mapped to 1.0
	perMileCeiling    = 5.0  // $/mile mapped to 1.0
	stopsBonusStep    = 0.1

	minMinutes = 1.0
	minMiles   = 0.1
	minStops   = 1
)

// Time and day multipliers.
const (
	peakMultiplier     = 1.2
	shoulderMultiplier = 1.0
	offPeakMultiplier  = 0.8

	weekendMultiplier = 1.15
	fridayMultiplier  = 1.05
	weekdayMultiplier = 1.0

	popularZoneMultiplier = 1.15
	plainZoneMultiplier   = 1.0
)

// Neutral midpoints used when a rating is absent.
const (
	neutralThreeScale = 2
	neutralFiveScale  = 3
)

// DefaultPopularZones are pickup areas that tend to keep a driver busy.
var DefaultPopularZones = []string{"downtown", "midtown", "theater district", "marina", "financial district"}

var weatherScores = map[string]float64{
	"sunny":  1.0,
	"cloudy": 0.9,
	"rainy":  0.75,
	"snowy":  0.6,
}

// Vector is the fixed-shape feature set for a single order.
type Vector struct {
	// Raw economics, used by the default heuristic.
	HourlyRate     float64 `json:"hourly_rate"`      // $/hr
	DollarsPerMile float64 `json:"dollars_per_mile"` // $/mile
	TimePerStop    float64 `json:"time_per_stop"`    // minutes

	// Normalised to [0,1].
	HourlyRateNorm  float64 `json:"hourly_rate_norm"`
	MilesEfficiency float64 `json:"miles_efficiency"`
	StopsBonus      float64 `json:"stops_bonus"`

	// Multipliers around 1.0.
	TimeOfDay       float64 `json:"time_of_day"`
	DayOfWeek       float64 `json:"day_of_week"`
	PickupZoneScore float64 `json:"pickup_zone_score"`
	Weather         float64 `json:"weather"`

	// Inverted difficulty contributions (higher = harder).
	Parking            float64 `json:"parking"`
	Dropoff            float64 `json:"dropoff"`
	EndZone            float64 `json:"end_zone"`
	RouteCohesion      float64 `json:"route_cohesion"`
	DropoffCompression float64 `json:"dropoff_compression"`
	NextOrderMomentum  float64 `json:"next_order_momentum"`
}

// Named returns the weighted features keyed by their WeightSet name.
func (v Vector) Named() map[string]float64 {
	return map[string]float64{
		model.FeatureHourlyRate:      v.HourlyRateNorm,
		model.FeatureMilesEfficiency: v.MilesEfficiency,
		model.FeatureStopsBonus:      v.StopsBonus,
		model.FeatureTimeOfDay:       v.TimeOfDay,
		model.FeatureDayOfWeek:       v.DayOfWeek,
		model.FeaturePickupZoneScore: v.PickupZoneScore,
	}
}

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithPopularZones replaces the popular pickup zone list.
func WithPopularZones(zones []string) Option {
	return func(e *Extractor) {
		if len(zones) == 0 {
			return
		}
		e.popularZones = make([]string, 0, len(zones))
		for _, z := range zones {
			if z = strings.ToLower(strings.TrimSpace(z)); z != "" {
				e.popularZones = append(e.popularZones, z)
			}
		}
	}
}

// Extractor derives feature vectors from orders. It holds no mutable state
// after construction and is safe for concurrent use.
type Extractor struct {
	popularZones []string
}

// NewExtractor creates an extractor with the default popular zone list.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{popularZones: DefaultPopularZones}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the feature vector for order. Missing or corrupt numeric
// fields fall back to neutral values; the result never contains NaN or Inf.
func (e *Extractor) Extract(o *model.Order) Vector {
	if o == nil {
		o = &model.Order{}
	}
	payout := nonNegative(o.ShownPayout)
	minutes := guard(o.EstimatedMinutes, minMinutes)
	miles := guard(o.Miles, minMiles)
	stops := o.NumberOfStops
	if stops < minStops {
		stops = minStops
	}

	hourly := payout * 60 / minutes
	perMile := payout / miles

	v := Vector{
		HourlyRate:      hourly,
		DollarsPerMile:  perMile,
		TimePerStop:     minutes / float64(stops),
		HourlyRateNorm:  clamp01(hourly / hourlyRateCeiling),
		MilesEfficiency: clamp01(perMile / perMileCeiling),
		StopsBonus:      math.Min(float64(stops)*stopsBonusStep, 1),
		TimeOfDay:       TimeOfDayScore(o.LocalTime),
		DayOfWeek:       DayOfWeekScore(o.DayOfWeek),
		PickupZoneScore: e.ZoneScore(o.PickupZone),
		Weather:         WeatherScore(o.Weather),

		Parking: invert3(o.Ratings.ParkingDifficulty),
		Dropoff: invert3(o.Ratings.DropoffDifficulty),
		EndZone: invert3(o.Ratings.EndZoneQuality),

		RouteCohesion:      invert5(o.Ratings.RouteCohesion),
		DropoffCompression: invert5(o.Ratings.DropoffCompression),
		NextOrderMomentum:  invert5(o.Ratings.NextOrderMomentum),
	}
	return v
}

// ZoneScore returns the popular-zone multiplier for a pickup zone name.
func (e *Extractor) ZoneScore(zone string) float64 {
	z := strings.ToLower(zone)
	if strings.TrimSpace(z) == "" {
		return plainZoneMultiplier
	}
	for _, p := range e.popularZones {
		if strings.Contains(z, p) {
			return popularZoneMultiplier
		}
	}
	return plainZoneMultiplier
}

// TimeOfDayScore scores a localized "HH:MM" string by its hour. Only the
// first two characters are read; anything unparseable is neutral.
func TimeOfDayScore(local string) float64 {
	s := strings.TrimSpace(local)
	if len(s) < 2 {
		return shoulderMultiplier
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		// single-digit hours such as "9:30"
		hour, err = strconv.Atoi(s[:1])
		if err != nil || s[1] != ':' {
			return shoulderMultiplier
		}
	}
	switch {
	case hour < 0 || hour > 23:
		return shoulderMultiplier
	case (hour >= 11 && hour < 14) || (hour >= 17 && hour < 20):
		return peakMultiplier
	case hour == 10 || hour == 14 || hour == 16 || hour == 20:
		return shoulderMultiplier
	default:
		return offPeakMultiplier
	}
}

// DayOfWeekScore scores an English day name.
func DayOfWeekScore(day string) float64 {
	switch strings.ToLower(strings.TrimSpace(day)) {
	case "saturday", "sunday":
		return weekendMultiplier
	case "friday":
		return fridayMultiplier
	default:
		return weekdayMultiplier
	}
}

// WeatherScore maps a weather label to its multiplier.
func WeatherScore(w string) float64 {
	if s, ok := weatherScores[strings.ToLower(strings.TrimSpace(w))]; ok {
		return s
	}
	return 1.0
}

func invert3(r *int) float64 {
	if r == nil || *r < 1 || *r > 3 {
		return neutralThreeScale
	}
	return float64(4 - *r)
}

func invert5(r *int) float64 {
	if r == nil || *r < 1 || *r > 5 {
		return neutralFiveScale
	}
	return float64(6 - *r)
}

// guard replaces zero, negative or non-finite denominators with floor.
func guard(x, floor float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < floor {
		return floor
	}
	return x
}

func nonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
