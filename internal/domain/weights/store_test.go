package weights_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/scoring"
	"github.com/okian/offerwise/internal/domain/weights"
	logging "github.com/okian/offerwise/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func trainingOrders() []*model.Order {
	return []*model.Order{
		{ShownPayout: 20, EstimatedMinutes: 40, Miles: 5, NumberOfStops: 1, PickupZone: "Downtown", LocalTime: "12:30",
			ActualPay: model.FloatPtr(22), ActualTotalMinutes: model.FloatPtr(38), Score: model.Score{Value: 6}},
		{ShownPayout: 8, EstimatedMinutes: 35, Miles: 9, NumberOfStops: 1, PickupZone: "Suburbs", LocalTime: "15:00",
			ActualPay: model.FloatPtr(8), ActualTotalMinutes: model.FloatPtr(45), Score: model.Score{Value: 2}},
		{ShownPayout: 30, EstimatedMinutes: 30, Miles: 4, NumberOfStops: 2, PickupZone: "Midtown", LocalTime: "18:10",
			Score: model.Score{Value: 9.5}},
		{ShownPayout: 12, EstimatedMinutes: 25, Miles: 3, NumberOfStops: 1, DayOfWeek: "Saturday",
			Score: model.Score{Value: 5}},
		{ShownPayout: 5, EstimatedMinutes: 10, Miles: 1, Score: model.Score{Value: math.NaN()}},
		nil,
	}
}

func TestStore_Train(t *testing.T) {
	Convey("Given an empty weight store", t, func() {
		ctx := context.Background()
		backing := kv.NewMemoryStore()
		trainedAt := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
		store := weights.NewStore(backing, scoring.NewEngine(),
			weights.WithClock(func() time.Time { return trainedAt }),
			weights.WithLogger(logging.NewNop()),
		)

		Convey("Then loading yields no set and no error", func() {
			ws, err := store.Load(ctx)
			So(err, ShouldBeNil)
			So(ws, ShouldBeNil)
		})

		Convey("When training on an empty batch", func() {
			_, err := store.Train(ctx, nil)
			So(errors.Is(err, weights.ErrNeedAtLeastOneOrder), ShouldBeTrue)
		})

		Convey("When training on orders with no finite score", func() {
			_, err := store.Train(ctx, []*model.Order{{Score: model.Score{Value: math.Inf(1)}}})
			So(errors.Is(err, weights.ErrNeedAtLeastOneOrder), ShouldBeTrue)
		})

		Convey("When training on a mixed batch", func() {
			res, err := store.Train(ctx, trainingOrders())
			So(err, ShouldBeNil)

			Convey("Then unscored orders are skipped", func() {
				So(res.Used, ShouldEqual, 4)
				So(res.Skipped, ShouldEqual, 2)
				So(res.WeightSet.DataPoints, ShouldEqual, 4)
			})

			Convey("Then the weights sum to 1 and are non-negative", func() {
				So(res.WeightSet.Sum(), ShouldAlmostEqual, 1.0, 1e-9)
				for _, name := range model.FeatureNames {
					So(res.WeightSet.Get(name), ShouldBeGreaterThanOrEqualTo, 0.0)
				}
			})

			Convey("Then accuracy is bounded and the set is stamped", func() {
				So(res.WeightSet.Accuracy, ShouldBeBetweenOrEqual, 0.0, 100.0)
				So(res.WeightSet.Version, ShouldEqual, 1)
				So(res.WeightSet.TrainedAt, ShouldEqual, trainedAt)
			})

			Convey("Then a second pass increments the version", func() {
				again, err := store.Train(ctx, trainingOrders())
				So(err, ShouldBeNil)
				So(again.WeightSet.Version, ShouldEqual, 2)
			})

			Convey("Then a fresh store over the same backing sees the set", func() {
				other := weights.NewStore(backing, nil, weights.WithLogger(logging.NewNop()))
				ws, err := other.Active(ctx)
				So(err, ShouldBeNil)
				So(ws, ShouldNotBeNil)
				So(ws.Version, ShouldEqual, 1)

				next, err := other.Train(ctx, trainingOrders())
				So(err, ShouldBeNil)
				So(next.WeightSet.Version, ShouldEqual, 2)
			})

			Convey("Then Reset falls back to no set", func() {
				So(store.Reset(ctx), ShouldBeNil)
				ws, err := store.Active(ctx)
				So(err, ShouldBeNil)
				So(ws, ShouldBeNil)
			})
		})
	})

	Convey("Given a prior blend outside [0,1] after a valid one", t, func() {
		for _, bad := range []float64{1.5, -0.2, math.NaN()} {
			store := weights.NewStore(kv.NewMemoryStore(), nil,
				weights.WithPriorBlend(1),
				weights.WithPriorBlend(bad),
				weights.WithLogger(logging.NewNop()),
			)

			res, err := store.Train(context.Background(), trainingOrders())
			So(err, ShouldBeNil)
			for name, want := range weights.DefaultProfile() {
				So(res.WeightSet.Get(name), ShouldAlmostEqual, want, 1e-9)
			}
		}
	})

	Convey("Given a store that keeps the prior entirely", t, func() {
		store := weights.NewStore(kv.NewMemoryStore(), nil, weights.WithPriorBlend(1), weights.WithLogger(logging.NewNop()))

		Convey("Then training reproduces the default profile", func() {
			res, err := store.Train(context.Background(), trainingOrders())
			So(err, ShouldBeNil)
			for name, want := range weights.DefaultProfile() {
				So(res.WeightSet.Get(name), ShouldAlmostEqual, want, 1e-9)
			}
		})
	})
}

func TestLabelAndNormalize(t *testing.T) {
	Convey("Given orders with and without actuals", t, func() {
		So(weights.Label(&model.Order{ActualPay: model.FloatPtr(25), ActualTotalMinutes: model.FloatPtr(60), Score: model.Score{Value: 3}}), ShouldEqual, 5.0)
		So(weights.Label(&model.Order{ActualPay: model.FloatPtr(200), ActualTotalMinutes: model.FloatPtr(30)}), ShouldEqual, 10.0)
		So(weights.Label(&model.Order{Score: model.Score{Value: 7.5}}), ShouldEqual, 7.5)
	})

	Convey("Given raw weight maps", t, func() {
		n := weights.Normalize(map[string]float64{model.FeatureHourlyRate: 2, model.FeatureStopsBonus: 2, model.FeatureTimeOfDay: math.NaN()})
		So(n[model.FeatureHourlyRate], ShouldEqual, 0.5)
		So(n[model.FeatureTimeOfDay], ShouldEqual, 0.0)
		So(weights.Normalize(nil), ShouldResemble, weights.DefaultProfile())
	})
}
