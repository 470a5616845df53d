// Package scoring converts an order's features into a 1..10 desirability
// score and the take/decline recommendations shown to the driver.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/okian/offerwise/internal/domain/features"
	"github.com/okian/offerwise/internal/domain/model"
)

// Score bounds and heuristic constants.
const (
	minScore = 1.0
	maxScore = 10.0

	heuristicRateBoost   = 1.2
	heuristicStopsCap    = 0.5
	downtownMultiplier   = 1.2
	driftFreeMinutes     = 20.0
	driftSpanMinutes     = 40.0
	maxDriftPenalty      = 0.25
	normalisationDivisor = 3.0

	quickScaleMax  = 4
	quickScaleStep = maxScore / quickScaleMax
)

// Algorithm labels recorded on each score.
const (
	AlgorithmHeuristic = "heuristic"
	AlgorithmWeighted  = "weighted"
)

// Thresholds holds the two recommendation cut-offs. They belong to different
// scales and are intentionally not derived from each other.
type Thresholds struct {
	// TakeAtOrAbove applies to the 1..10 score (manual session and admin paths).
	TakeAtOrAbove float64
	// QuickDeclineAtOrBelow applies to the live 1..4 quick score.
	QuickDeclineAtOrBelow int
}

// DefaultThresholds returns the cut-offs used by the driver app.
func DefaultThresholds() Thresholds {
	return Thresholds{TakeAtOrAbove: 7.5, QuickDeclineAtOrBelow: 2}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithExtractor sets the feature extractor.
func WithExtractor(ex *features.Extractor) Option {
	return func(e *Engine) {
		if ex != nil {
			e.extractor = ex
		}
	}
}

// WithThresholds overrides the recommendation cut-offs. Non-positive values
// keep the defaults.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) {
		if t.TakeAtOrAbove > 0 {
			e.thresholds.TakeAtOrAbove = t.TakeAtOrAbove
		}
		if t.QuickDeclineAtOrBelow > 0 {
			e.thresholds.QuickDeclineAtOrBelow = t.QuickDeclineAtOrBelow
		}
	}
}

// WithClock sets the time source used for ScoredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine scores orders. It is a pure function of the order and weight set.
type Engine struct {
	extractor  *features.Extractor
	thresholds Thresholds
	now        func() time.Time
}

// NewEngine creates a scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		extractor:  features.NewExtractor(),
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the configured cut-offs.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Score computes the full verdict for an order. A nil weight set selects
// the default heuristic.
func (e *Engine) Score(o *model.Order, ws *model.WeightSet) model.Score {
	value := e.Value(o, ws)
	quick := QuickScore(value)
	s := model.Score{
		Value:          value,
		Recommendation: e.Recommend(value),
		QuickScore:     quick,
		QuickDecision:  e.RecommendQuick(quick),
		Algorithm:      AlgorithmHeuristic,
		ScoredAt:       e.now().UTC(),
	}
	if ws != nil {
		s.Algorithm = AlgorithmWeighted
		s.WeightVersion = ws.Version
	}
	return s
}

// Value returns the numeric score in [1,10], rounded to the nearest 0.5.
func (e *Engine) Value(o *model.Order, ws *model.WeightSet) float64 {
	v := e.extractor.Extract(o)
	var raw float64
	if ws == nil {
		raw = heuristic(o, v)
	} else {
		raw = weighted(v, ws)
	}
	return normalise(raw)
}

// Recommend applies the 1..10 threshold: score >= TakeAtOrAbove takes.
func (e *Engine) Recommend(score float64) string {
	if score >= e.thresholds.TakeAtOrAbove {
		return model.RecommendTake
	}
	return model.RecommendDecline
}

// RecommendQuick applies the live 1..4 threshold: quick <= QuickDeclineAtOrBelow declines.
func (e *Engine) RecommendQuick(quick int) string {
	if quick <= e.thresholds.QuickDeclineAtOrBelow {
		return model.RecommendDecline
	}
	return model.RecommendTake
}

// QuickScore maps a 1..10 score onto the integer 1..4 scale.
func QuickScore(score float64) int {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 1
	}
	q := int(math.Ceil(score / quickScaleStep))
	if q < 1 {
		return 1
	}
	if q > quickScaleMax {
		return quickScaleMax
	}
	return q
}

func heuristic(o *model.Order, v features.Vector) float64 {
	base := v.HourlyRate*heuristicRateBoost*0.5 +
		v.DollarsPerMile*0.3 +
		math.Min(v.StopsBonus, heuristicStopsCap)*0.2

	zone := 1.0
	if o != nil && strings.EqualFold(strings.TrimSpace(o.PickupZone), "downtown") {
		zone = downtownMultiplier
	}

	drift := 0.0
	if v.TimePerStop > driftFreeMinutes {
		drift = math.Min((v.TimePerStop-driftFreeMinutes)/driftSpanMinutes, maxDriftPenalty)
	}

	return base * zone * (1 - drift)
}

// weighted applies the trained weights to the raw $/hr and $/mile figures.
// The zone enters only through its weight, not through PickupZoneScore, so
// a set summing to 1 lands near the bottom of the scale.
func weighted(v features.Vector, ws *model.WeightSet) float64 {
	sum := v.HourlyRate*ws.Get(model.FeatureHourlyRate)*0.5 +
		v.DollarsPerMile*ws.Get(model.FeatureMilesEfficiency)*0.3 +
		v.StopsBonus*ws.Get(model.FeatureStopsBonus)*0.1 +
		v.TimeOfDay*ws.Get(model.FeatureTimeOfDay)*0.1
	return sum * ws.Get(model.FeaturePickupZoneScore)
}

// normalise divides, clamps and rounds; anything non-finite is the worst case.
func normalise(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return minScore
	}
	s := raw / normalisationDivisor
	s = math.Max(minScore, math.Min(maxScore, s))
	s = math.Round(s*2) / 2
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return minScore
	}
	return s
}
