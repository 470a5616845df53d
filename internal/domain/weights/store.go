package weights

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/domain/features"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

// Training constants.
const (
	defaultPriorBlend = 0.5

	// realised $/hr that maps to a perfect 10 label
	labelHourlyCeiling = 50.0
	labelMin           = 1.0
	labelMax           = 10.0

	accuracyPerPoint = 10.0
)

// Predictor scores an order under a weight set. The scoring engine satisfies it.
type Predictor interface {
	Value(o *model.Order, ws *model.WeightSet) float64
}

// TrainResult summarises a training pass.
type TrainResult struct {
	WeightSet *model.WeightSet `json:"weight_set"`
	Used      int              `json:"used"`
	Skipped   int              `json:"skipped"`
	// MeanAbsError is measured on the 1..10 scale.
	MeanAbsError float64 `json:"mean_abs_error"`
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPriorBlend sets how much of the fixed prior survives training.
// 1 keeps the default profile; 0 uses the learned correlations alone.
// Values outside [0,1] are ignored; config.Validate rejects them earlier.
func WithPriorBlend(blend float64) Option {
	return func(s *Store) {
		if blend >= 0 && blend <= 1 {
			s.blend = blend
		}
	}
}

// WithExtractor sets the feature extractor used to build training rows.
func WithExtractor(ex *features.Extractor) Option {
	return func(s *Store) {
		if ex != nil {
			s.extractor = ex
		}
	}
}

// WithClock sets the time source stamped on trained sets.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store owns the active weight set and its persistence.
type Store struct {
	mu        sync.RWMutex
	kv        kv.Store
	predictor Predictor
	extractor *features.Extractor
	blend     float64
	now       func() time.Time
	logger    logger.Logger

	active *model.WeightSet
	loaded bool
}

// NewStore creates a weight store backed by store.
func NewStore(store kv.Store, predictor Predictor, opts ...Option) *Store {
	s := &Store{
		kv:        store,
		predictor: predictor,
		extractor: features.NewExtractor(),
		blend:     defaultPriorBlend,
		now:       time.Now,
		logger:    logger.Get().Named("weights"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the last persisted set, or nil when none was ever trained.
func (s *Store) Load(ctx context.Context) (*model.WeightSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ws model.WeightSet
	found, err := kv.GetJSON(ctx, s.kv, kv.KeyWeights, &ws)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	s.loaded = true
	if !found {
		s.active = nil
		return nil, nil
	}
	ws.Weights = Normalize(ws.Weights)
	s.active = &ws
	s.logger.Info(ctx, "weights loaded", logger.Int("version", ws.Version), logger.Float64("accuracy", ws.Accuracy))
	return cloneSet(s.active), nil
}

// Active returns a copy of the in-memory set, loading it on first use.
func (s *Store) Active(ctx context.Context) (*model.WeightSet, error) {
	s.mu.RLock()
	if s.loaded {
		ws := cloneSet(s.active)
		s.mu.RUnlock()
		return ws, nil
	}
	s.mu.RUnlock()
	return s.Load(ctx)
}

// Train derives a new set from orders, persists it and makes it active.
func (s *Store) Train(ctx context.Context, orders []*model.Order) (TrainResult, error) {
	rows := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if o != nil && finite(o.Score.Value) && o.Score.Value > 0 {
			rows = append(rows, o)
		}
	}
	res := TrainResult{Used: len(rows), Skipped: len(orders) - len(rows)}
	if len(rows) == 0 {
		return res, ErrNeedAtLeastOneOrder
	}

	labels := make([]float64, len(rows))
	columns := make(map[string][]float64, len(model.FeatureNames))
	for i, o := range rows {
		labels[i] = Label(o)
		for name, v := range s.extractor.Extract(o).Named() {
			columns[name] = append(columns[name], v)
		}
	}

	learned := make(map[string]float64, len(model.FeatureNames))
	for _, name := range model.FeatureNames {
		learned[name] = math.Max(0, pearson(columns[name], labels))
	}
	learned = Normalize(learned)

	prior := DefaultProfile()
	blended := make(map[string]float64, len(model.FeatureNames))
	for _, name := range model.FeatureNames {
		blended[name] = s.blend*prior[name] + (1-s.blend)*learned[name]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if s.active != nil {
		version = s.active.Version + 1
	} else if !s.loaded {
		var prev model.WeightSet
		if found, err := kv.GetJSON(ctx, s.kv, kv.KeyWeights, &prev); err == nil && found {
			version = prev.Version + 1
		}
	}

	ws := &model.WeightSet{
		Weights:    Normalize(blended),
		Version:    version,
		TrainedAt:  s.now().UTC(),
		DataPoints: len(rows),
	}

	if s.predictor != nil {
		var errSum float64
		for i, o := range rows {
			errSum += math.Abs(s.predictor.Value(o, ws) - labels[i])
		}
		res.MeanAbsError = errSum / float64(len(rows))
		ws.Accuracy = math.Max(0, math.Min(100, 100-res.MeanAbsError*accuracyPerPoint))
	}

	if err := kv.PutJSON(ctx, s.kv, kv.KeyWeights, ws); err != nil {
		metrics.RecordErrorByComponent("weights", "persist_failed")
		return res, fmt.Errorf("persist weights: %w", err)
	}
	s.active = ws
	s.loaded = true
	res.WeightSet = cloneSet(ws)

	metrics.RecordTraining(len(rows), ws.Accuracy)
	s.logger.Info(ctx, "weights trained",
		logger.Int("version", ws.Version),
		logger.Int("data_points", ws.DataPoints),
		logger.Float64("accuracy", ws.Accuracy),
	)
	return res, nil
}

// Reset forgets the active set so scoring falls back to the heuristic.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, kv.KeyWeights); err != nil {
		return fmt.Errorf("reset weights: %w", err)
	}
	s.active = nil
	s.loaded = true
	return nil
}

// Label is the training target for an order: realised $/hr scaled onto
// 1..10 when actuals exist, otherwise the score the order received.
func Label(o *model.Order) float64 {
	if o.ActualPay != nil && o.ActualTotalMinutes != nil && *o.ActualTotalMinutes > 0 {
		hourly := *o.ActualPay * 60 / *o.ActualTotalMinutes
		if finite(hourly) {
			return math.Max(labelMin, math.Min(labelMax, hourly/labelHourlyCeiling*labelMax))
		}
	}
	return o.Score.Value
}

// pearson returns the correlation of x and y, or 0 when undefined.
func pearson(x, y []float64) float64 {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	if !finite(r) {
		return 0
	}
	return r
}

func cloneSet(ws *model.WeightSet) *model.WeightSet {
	if ws == nil {
		return nil
	}
	out := *ws
	out.Weights = make(map[string]float64, len(ws.Weights))
	for k, v := range ws.Weights {
		out.Weights[k] = v
	}
	return &out
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
