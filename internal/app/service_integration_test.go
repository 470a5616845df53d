package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/adapters/repository"
	service "github.com/okian/offerwise/internal/app"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func deliver(ctx context.Context, svc *service.Service, o *model.Order) *model.Order {
	res, err := svc.Offer(ctx, o)
	So(err, ShouldBeNil)
	_, err = svc.Advance(ctx, service.ActionAccept)
	So(err, ShouldBeNil)
	for i := 0; i < res.Order.NumberOfStops; i++ {
		_, err = svc.Advance(ctx, service.ActionPickup)
		So(err, ShouldBeNil)
	}
	res, err = svc.Advance(ctx, service.ActionDropoff)
	So(err, ShouldBeNil)
	So(res.Step, ShouldEqual, lifecycle.StepImmediateSurveyPending)
	return res.Order
}

func singleStopRatings() lifecycle.ImmediateSurvey {
	return lifecycle.ImmediateSurvey{Ratings: model.Ratings{
		ParkingDifficulty: model.IntPtr(3),
		DropoffDifficulty: model.IntPtr(2),
		EndZoneQuality:    model.IntPtr(3),
	}}
}

func TestService_ShiftIntegration(t *testing.T) {
	Convey("Given a driver who starts a shift", t, func() {
		ctx := context.Background()
		clk := newClock()
		svc := newService(kv.NewMemoryStore(), clk)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sess, err := svc.StartSession(ctx)
		So(err, ShouldBeNil)

		Convey("When a $20 downtown order is delivered", func() {
			clk.Advance(10 * time.Minute)
			o := deliver(ctx, svc, downtownOffer())

			Convey("Then it joined the session at dropoff", func() {
				So(o.SessionID, ShouldEqual, sess.ID)
				cur, err := svc.CurrentSession(ctx)
				So(err, ShouldBeNil)
				So(cur.TotalOrders, ShouldEqual, 1)
				So(cur.TotalEarnings, ShouldEqual, 20.0)
				So(cur.TripPhase, ShouldEqual, model.TripCollecting)
			})

			Convey("Then it waits for its immediate survey", func() {
				queue, err := svc.ImmediateSurveys(ctx)
				So(err, ShouldBeNil)
				So(queue, ShouldHaveLength, 1)
				So(queue[0].ID, ShouldEqual, o.ID)
			})

			Convey("When both surveys are answered", func() {
				_, err := svc.SubmitImmediateSurvey(ctx, o.ID, singleStopRatings())
				So(err, ShouldBeNil)

				delayed, err := svc.DelayedSurveys(ctx)
				So(err, ShouldBeNil)
				So(delayed, ShouldHaveLength, 1)

				clk.Advance(2 * time.Hour)
				res, err := svc.SubmitDelayedSurvey(ctx, o.ID, lifecycle.DelayedSurvey{ActualPay: 26, ActualTotalMinutes: 45})
				So(err, ShouldBeNil)

				Convey("Then the order is complete and in history", func() {
					So(res.Step, ShouldEqual, lifecycle.StepComplete)
					stored, err := svc.Orders(ctx, repository.OrderFilter{SessionID: sess.ID})
					So(err, ShouldBeNil)
					So(stored, ShouldHaveLength, 1)
					So(*stored[0].ActualPay, ShouldEqual, 26.0)

					rank, err := svc.OrderRank(ctx, o.ID)
					So(err, ShouldBeNil)
					So(rank.Rank, ShouldEqual, 1)
				})

				Convey("Then the session earnings use the actual pay", func() {
					cur, err := svc.CurrentSession(ctx)
					So(err, ShouldBeNil)
					So(cur.TotalEarnings, ShouldEqual, 26.0)
					So(cur.TotalHours, ShouldEqual, 0.75)
				})

				Convey("Then a second delayed survey is refused", func() {
					_, err := svc.SubmitDelayedSurvey(ctx, o.ID, lifecycle.DelayedSurvey{ActualPay: 30, ActualTotalMinutes: 45})
					So(errors.Is(err, lifecycle.ErrOrderFinalized), ShouldBeTrue)
				})

				Convey("Then training learns from history", func() {
					out, err := svc.Train(ctx, nil)
					So(err, ShouldBeNil)
					So(out.WeightSet.Version, ShouldEqual, 1)

					ws, err := svc.Weights(ctx)
					So(err, ShouldBeNil)
					So(ws.Version, ShouldEqual, 1)

					sc, err := svc.Score(ctx, downtownOffer())
					So(err, ShouldBeNil)
					So(sc.Algorithm, ShouldEqual, "weighted")
					So(sc.WeightVersion, ShouldEqual, 1)

					So(svc.ResetWeights(ctx), ShouldBeNil)
					sc, err = svc.Score(ctx, downtownOffer())
					So(err, ShouldBeNil)
					So(sc.Algorithm, ShouldEqual, "heuristic")
				})
			})

			Convey("When the delayed survey is dismissed", func() {
				_, err := svc.SubmitImmediateSurvey(ctx, o.ID, singleStopRatings())
				So(err, ShouldBeNil)
				_, err = svc.DismissDelayedSurvey(ctx, o.ID)
				So(err, ShouldBeNil)

				Convey("Then the order is stored without actuals", func() {
					stored, err := svc.Orders(ctx, repository.OrderFilter{})
					So(err, ShouldBeNil)
					So(stored, ShouldHaveLength, 1)
					So(stored[0].ActualPay, ShouldBeNil)
					So(stored[0].Final(), ShouldBeTrue)
				})
			})
		})

		Convey("When a 3-stop order is delivered", func() {
			o := downtownOffer()
			o.NumberOfStops = 3
			o.ShownPayout = 34
			delivered := deliver(ctx, svc, o)

			Convey("Then its survey needs the multi-stop ratings", func() {
				_, err := svc.SubmitImmediateSurvey(ctx, delivered.ID, singleStopRatings())
				So(errors.Is(err, lifecycle.ErrInvalidRatings), ShouldBeTrue)

				in := singleStopRatings()
				in.Ratings.RouteCohesion = model.IntPtr(4)
				in.Ratings.DropoffCompression = model.IntPtr(3)
				in.Ratings.NextOrderMomentum = model.IntPtr(5)
				_, err = svc.SubmitImmediateSurvey(ctx, delivered.ID, in)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the session is recalculated mid-shift", func() {
			deliver(ctx, svc, downtownOffer())
			deliver(ctx, svc, downtownOffer())
			cur, err := svc.RecalculateSession(ctx)
			So(err, ShouldBeNil)

			Convey("Then totals and the average score are rebuilt", func() {
				So(cur.TotalOrders, ShouldEqual, 2)
				So(cur.TotalEarnings, ShouldEqual, 40.0)
				So(cur.AverageScore, ShouldBeBetweenOrEqual, 1, 10)
			})
		})
	})
}

func TestService_RestartRecovery(t *testing.T) {
	Convey("Given an order waiting for its delayed survey", t, func() {
		ctx := context.Background()
		clk := newClock()
		store := kv.NewMemoryStore()
		history := repository.NewMemoryStore(ctx)

		first := service.New(
			service.WithConfig(testConfig()),
			service.WithLogger(logger.NewNop()),
			service.WithStore(store),
			service.WithHistory(history),
			service.WithClock(clk.Now),
		)
		So(first.Start(ctx), ShouldBeNil)
		sess, err := first.StartSession(ctx)
		So(err, ShouldBeNil)
		o := deliver(ctx, first, downtownOffer())
		_, err = first.SubmitImmediateSurvey(ctx, o.ID, singleStopRatings())
		So(err, ShouldBeNil)
		So(first.Stop(ctx), ShouldBeNil)

		restart := func() *service.Service {
			svc := service.New(
				service.WithConfig(testConfig()),
				service.WithLogger(logger.NewNop()),
				service.WithStore(store),
				service.WithHistory(repository.NewMemoryStore(ctx)),
				service.WithClock(clk.Now),
			)
			So(svc.Start(ctx), ShouldBeNil)
			return svc
		}

		Convey("When the app restarts before the survey is due", func() {
			svc := restart()
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then the survey and session are restored", func() {
				delayed, err := svc.DelayedSurveys(ctx)
				So(err, ShouldBeNil)
				So(delayed, ShouldHaveLength, 1)
				So(delayed[0].ID, ShouldEqual, o.ID)

				cur, err := svc.CurrentSession(ctx)
				So(err, ShouldBeNil)
				So(cur.ID, ShouldEqual, sess.ID)
				So(cur.TotalOrders, ShouldEqual, 1)
			})
		})

		Convey("When the app restarts after the survey window closed", func() {
			clk.Advance(5 * time.Hour)
			svc := restart()
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then the order expired into history", func() {
				delayed, err := svc.DelayedSurveys(ctx)
				So(err, ShouldBeNil)
				So(delayed, ShouldBeEmpty)

				stored, err := svc.Orders(ctx, repository.OrderFilter{})
				So(err, ShouldBeNil)
				So(stored, ShouldHaveLength, 1)
				So(stored[0].Status, ShouldEqual, model.OrderStatusExpired)
				So(stored[0].ActualPay, ShouldBeNil)
			})

			Convey("Then no reminder is left pending", func() {
				So(svc.GetStats()["pendingReminders"], ShouldEqual, 0)
			})
		})
	})
}
