package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/reminder"
	logging "github.com/okian/offerwise/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ctx   context.Context
	clock *fakeClock
	store *kv.MemoryStore
	sched *reminder.Scheduler
	m     *lifecycle.Machine
}

func newFixture() *fixture {
	clk := &fakeClock{now: time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seq := 0
	f := &fixture{ctx: context.Background(), clock: clk, store: store}
	f.sched = reminder.NewScheduler(store, reminder.WithClock(clk.Now), reminder.WithLogger(logging.NewNop()))
	f.m = lifecycle.NewMachine(store, f.sched,
		lifecycle.WithClock(clk.Now),
		lifecycle.WithLogger(logging.NewNop()),
		lifecycle.WithIDGenerator(func() string { seq++; return fmt.Sprintf("order-%d", seq) }),
	)
	return f
}

func (f *fixture) reopen() *lifecycle.Machine {
	return lifecycle.NewMachine(f.store, f.sched, lifecycle.WithClock(f.clock.Now), lifecycle.WithLogger(logging.NewNop()))
}

func offer(stops int) *model.Order {
	return &model.Order{
		NumberOfStops:    stops,
		ShownPayout:      20,
		Miles:            5,
		EstimatedMinutes: 40,
		PickupZone:       "Downtown",
		Score:            model.Score{Value: 6, Recommendation: model.RecommendDecline},
	}
}

func ratings(multi bool) model.Ratings {
	r := model.Ratings{
		ParkingDifficulty: model.IntPtr(2),
		DropoffDifficulty: model.IntPtr(1),
		EndZoneQuality:    model.IntPtr(3),
	}
	if multi {
		r.RouteCohesion = model.IntPtr(4)
		r.DropoffCompression = model.IntPtr(3)
		r.NextOrderMomentum = model.IntPtr(5)
	}
	return r
}

func TestMachine_MultiStopPickup(t *testing.T) {
	Convey("Given a 3-stop order that was accepted", t, func() {
		f := newFixture()
		res, err := f.m.Offer(f.ctx, offer(3))
		So(err, ShouldBeNil)
		So(res.Step, ShouldEqual, lifecycle.StepOffered)
		So(res.Screen, ShouldEqual, lifecycle.ScreenOffer)
		So(res.Order.ID, ShouldEqual, "order-1")
		So(res.Order.OfferedAt, ShouldEqual, f.clock.now)

		res, err = f.m.Accept(f.ctx)
		So(err, ShouldBeNil)
		So(res.Screen, ShouldEqual, lifecycle.ScreenPickup)
		So(res.Order.AcceptedAt, ShouldNotBeNil)

		Convey("When the first two pickups are confirmed", func() {
			r1, err := f.m.ConfirmPickup(f.ctx)
			So(err, ShouldBeNil)
			r2, err := f.m.ConfirmPickup(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then the order keeps collecting", func() {
				So(r1.Step, ShouldEqual, lifecycle.StepPickedUp)
				So(r2.Step, ShouldEqual, lifecycle.StepPickedUp)
				So(r2.Order.PickedUpCount, ShouldEqual, 2)
				So(r2.Screen, ShouldEqual, lifecycle.ScreenPickup)
			})

			Convey("When the third stop involves a wait", func() {
				_, err := f.m.StartWait(f.ctx)
				So(err, ShouldBeNil)
				f.clock.Advance(7 * time.Minute)
				res, err := f.m.EndWait(f.ctx)
				So(err, ShouldBeNil)

				Convey("Then ending the wait confirms the last pickup and starts delivery", func() {
					So(res.Order.PickedUpCount, ShouldEqual, 3)
					So(res.Step, ShouldEqual, lifecycle.StepDelivering)
					So(res.Screen, ShouldEqual, lifecycle.ScreenDropoff)
					So(res.Order.WaitTimeAtRestaurant, ShouldEqual, 7.0)
				})

				Convey("Then another pickup is rejected", func() {
					_, err := f.m.ConfirmPickup(f.ctx)
					So(errors.Is(err, lifecycle.ErrInvalidTransition), ShouldBeTrue)
				})
			})
		})

		Convey("When dropping off before all stops are collected", func() {
			_, err := f.m.ConfirmPickup(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.m.DropOff(f.ctx)
			So(errors.Is(err, lifecycle.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestMachine_FullFlow(t *testing.T) {
	Convey("Given a single-stop order delivered end to end", t, func() {
		f := newFixture()
		_, err := f.m.Offer(f.ctx, offer(1))
		So(err, ShouldBeNil)
		_, err = f.m.Accept(f.ctx)
		So(err, ShouldBeNil)
		res, err := f.m.ConfirmPickup(f.ctx)
		So(err, ShouldBeNil)
		So(res.Step, ShouldEqual, lifecycle.StepDelivering)
		f.clock.Advance(25 * time.Minute)
		res, err = f.m.DropOff(f.ctx)
		So(err, ShouldBeNil)

		Convey("Then the order waits for its immediate survey", func() {
			So(res.Step, ShouldEqual, lifecycle.StepImmediateSurveyPending)
			So(res.Screen, ShouldEqual, lifecycle.ScreenImmediateSurvey)
			So(res.Order.Status, ShouldEqual, model.OrderStatusDelivered)
			So(res.Order.ActualEndAt, ShouldNotBeNil)

			_, err := f.m.Active()
			So(errors.Is(err, lifecycle.ErrNoActiveOrder), ShouldBeTrue)

			next, err := f.m.NextImmediateSurvey()
			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, res.Order.ID)
		})

		Convey("When the immediate survey carries multi-stop ratings", func() {
			res, err := f.m.SubmitImmediateSurvey(f.ctx, "order-1", lifecycle.ImmediateSurvey{Ratings: ratings(true)})
			So(err, ShouldBeNil)

			Convey("Then they are dropped and the delayed survey is scheduled two hours out", func() {
				So(res.Order.Ratings.RouteCohesion, ShouldBeNil)
				So(*res.Order.Ratings.ParkingDifficulty, ShouldEqual, 2)
				So(res.Step, ShouldEqual, lifecycle.StepDelayedSurveyPending)
				So(res.Screen, ShouldEqual, lifecycle.ScreenOffer)
				So(*res.Order.DelayedDueAt, ShouldEqual, f.clock.now.Add(2*time.Hour))

				r, ok := f.sched.Get(model.ReminderOrderSurvey, "order-1")
				So(ok, ShouldBeTrue)
				So(r.DueAt, ShouldEqual, *res.Order.DelayedDueAt)
			})

			Convey("When the due time arrives", func() {
				f.clock.Advance(2 * time.Hour)
				So(f.m.Screen(), ShouldEqual, lifecycle.ScreenDelayedSurvey)

				Convey("Then submitting actuals completes the order", func() {
					res, err := f.m.SubmitDelayedSurvey(f.ctx, "order-1", lifecycle.DelayedSurvey{ActualPay: 22.5, ActualTotalMinutes: 38})
					So(err, ShouldBeNil)
					So(res.Step, ShouldEqual, lifecycle.StepComplete)
					So(res.Screen, ShouldEqual, lifecycle.ScreenDone)
					So(res.Order.Status, ShouldEqual, model.OrderStatusComplete)
					So(*res.Order.ActualPay, ShouldEqual, 22.5)
					So(f.m.DelayedSurveys(), ShouldBeEmpty)

					_, ok := f.sched.Get(model.ReminderOrderSurvey, "order-1")
					So(ok, ShouldBeFalse)

					_, err = f.m.SubmitDelayedSurvey(f.ctx, "order-1", lifecycle.DelayedSurvey{ActualPay: 1, ActualTotalMinutes: 1})
					So(errors.Is(err, lifecycle.ErrSurveyNotFound), ShouldBeTrue)
				})

				Convey("Then invalid actuals are rejected", func() {
					_, err := f.m.SubmitDelayedSurvey(f.ctx, "order-1", lifecycle.DelayedSurvey{ActualPay: -1, ActualTotalMinutes: 30})
					So(errors.Is(err, lifecycle.ErrInvalidActuals), ShouldBeTrue)
				})
			})

			Convey("When the window closes unanswered", func() {
				f.clock.Advance(4 * time.Hour)
				expired := f.m.ExpireDue(f.ctx)

				Convey("Then the order is final with its delayed fields absent", func() {
					So(len(expired), ShouldEqual, 1)
					So(expired[0].Status, ShouldEqual, model.OrderStatusExpired)
					So(expired[0].ActualPay, ShouldBeNil)
					So(expired[0].DelayedSurveyAt, ShouldBeNil)
					So(expired[0].Final(), ShouldBeTrue)
					So(f.m.ExpireDue(f.ctx), ShouldBeEmpty)
				})
			})

			Convey("When the driver dismisses the delayed survey", func() {
				res, err := f.m.DismissDelayedSurvey(f.ctx, "order-1")
				So(err, ShouldBeNil)
				So(res.Order.Status, ShouldEqual, model.OrderStatusComplete)
				So(res.Order.ActualPay, ShouldBeNil)
			})
		})

		Convey("When the delayed survey is attempted first", func() {
			_, err := f.m.SubmitDelayedSurvey(f.ctx, "order-1", lifecycle.DelayedSurvey{ActualPay: 20, ActualTotalMinutes: 30})
			So(errors.Is(err, lifecycle.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestMachine_SurveyQueue(t *testing.T) {
	Convey("Given two orders dropped off in sequence", t, func() {
		f := newFixture()
		for i := 0; i < 2; i++ {
			_, err := f.m.Offer(f.ctx, offer(1))
			So(err, ShouldBeNil)
			_, err = f.m.Accept(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.m.ConfirmPickup(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.m.DropOff(f.ctx)
			So(err, ShouldBeNil)
			f.clock.Advance(time.Minute)
		}

		Convey("Then the oldest survey comes first", func() {
			next, err := f.m.NextImmediateSurvey()
			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, "order-1")
			So(len(f.m.ImmediateSurveys()), ShouldEqual, 2)

			res, err := f.m.SubmitImmediateSurvey(f.ctx, "order-1", lifecycle.ImmediateSurvey{Ratings: ratings(false)})
			So(err, ShouldBeNil)
			So(res.Screen, ShouldEqual, lifecycle.ScreenImmediateSurvey)

			next, err = f.m.NextImmediateSurvey()
			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, "order-2")
		})

		Convey("Then a new offer can start while surveys wait", func() {
			res, err := f.m.Offer(f.ctx, offer(1))
			So(err, ShouldBeNil)
			So(res.Screen, ShouldEqual, lifecycle.ScreenImmediateSurvey)
		})

		Convey("Then unknown survey ids are reported", func() {
			_, err := f.m.SubmitImmediateSurvey(f.ctx, "nope", lifecycle.ImmediateSurvey{})
			So(errors.Is(err, lifecycle.ErrSurveyNotFound), ShouldBeTrue)
		})
	})
}

func TestMachine_Guards(t *testing.T) {
	Convey("Given a fresh machine", t, func() {
		f := newFixture()

		Convey("Then transitions without an order fail", func() {
			_, err := f.m.Accept(f.ctx)
			So(errors.Is(err, lifecycle.ErrNoActiveOrder), ShouldBeTrue)
			_, err = f.m.DropOff(f.ctx)
			So(errors.Is(err, lifecycle.ErrNoActiveOrder), ShouldBeTrue)
			_, err = f.m.NextImmediateSurvey()
			So(errors.Is(err, lifecycle.ErrNoPendingSurvey), ShouldBeTrue)
		})

		Convey("Then an unscored order is refused", func() {
			o := offer(1)
			o.Score = model.Score{}
			_, err := f.m.Offer(f.ctx, o)
			So(errors.Is(err, lifecycle.ErrMissingScore), ShouldBeTrue)
		})

		Convey("When an offer is declined", func() {
			_, err := f.m.Offer(f.ctx, offer(1))
			So(err, ShouldBeNil)
			res, err := f.m.Decline(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then nothing remains in flight or persisted", func() {
				So(res.Step, ShouldEqual, lifecycle.StepDeclined)
				_, err := f.m.Active()
				So(errors.Is(err, lifecycle.ErrNoActiveOrder), ShouldBeTrue)
				_, err = f.store.Get(f.ctx, kv.KeyWorkflow)
				So(errors.Is(err, kv.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an order is picked up", func() {
			_, err := f.m.Offer(f.ctx, offer(2))
			So(err, ShouldBeNil)
			_, err = f.m.Accept(f.ctx)
			So(err, ShouldBeNil)
			_, err = f.m.ConfirmPickup(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then it can no longer be declined or replaced", func() {
				_, err := f.m.Decline(f.ctx)
				So(errors.Is(err, lifecycle.ErrInvalidTransition), ShouldBeTrue)
				_, err = f.m.Offer(f.ctx, offer(1))
				So(errors.Is(err, lifecycle.ErrOrderInProgress), ShouldBeTrue)
			})
		})

		Convey("When a new offer replaces one still on screen", func() {
			_, err := f.m.Offer(f.ctx, offer(1))
			So(err, ShouldBeNil)
			res, err := f.m.Offer(f.ctx, offer(2))
			So(err, ShouldBeNil)
			So(res.Order.ID, ShouldEqual, "order-2")
		})
	})
}

func TestMachine_Resume(t *testing.T) {
	Convey("Given a workflow interrupted mid-pickup", t, func() {
		f := newFixture()
		_, err := f.m.Offer(f.ctx, offer(2))
		So(err, ShouldBeNil)
		_, err = f.m.Accept(f.ctx)
		So(err, ShouldBeNil)
		before, err := f.m.ConfirmPickup(f.ctx)
		So(err, ShouldBeNil)

		Convey("When a new machine resumes from the store", func() {
			m2 := f.reopen()
			res, err := m2.Resume(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then the step and order survive the round trip", func() {
				So(res.Step, ShouldEqual, lifecycle.StepPickedUp)
				So(res.Screen, ShouldEqual, lifecycle.ScreenPickup)
				So(res.Order, ShouldResemble, before.Order)
			})

			Convey("Then the workflow continues where it left off", func() {
				res, err := m2.ConfirmPickup(f.ctx)
				So(err, ShouldBeNil)
				So(res.Step, ShouldEqual, lifecycle.StepDelivering)
			})
		})

		Convey("When the stored workflow is corrupt", func() {
			So(f.store.Put(f.ctx, kv.KeyWorkflow, []byte(`{"step":`)), ShouldBeNil)
			res, err := f.reopen().Resume(f.ctx)

			Convey("Then resume fails to the restart screen and clears the record", func() {
				So(errors.Is(err, lifecycle.ErrResume), ShouldBeTrue)
				So(res.Screen, ShouldEqual, lifecycle.ScreenRestart)
				_, gerr := f.store.Get(f.ctx, kv.KeyWorkflow)
				So(errors.Is(gerr, kv.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the stored workflow names an unknown step", func() {
			So(f.store.Put(f.ctx, kv.KeyWorkflow, []byte(`{"step":"teleporting","order":{"id":"x","score":{"value":5}}}`)), ShouldBeNil)
			_, err := f.reopen().Resume(f.ctx)
			So(errors.Is(err, lifecycle.ErrResume), ShouldBeTrue)
		})
	})

	Convey("Given nothing was persisted", t, func() {
		f := newFixture()
		res, err := f.m.Resume(f.ctx)
		So(err, ShouldBeNil)
		So(res.Screen, ShouldEqual, lifecycle.ScreenOffer)
		So(res.Order, ShouldBeNil)
	})
}

func TestValidateRatings(t *testing.T) {
	Convey("Given a multi-stop order", t, func() {
		Convey("Then complete ratings pass", func() {
			r, err := lifecycle.ValidateRatings(3, ratings(true))
			So(err, ShouldBeNil)
			So(*r.NextOrderMomentum, ShouldEqual, 5)
		})

		Convey("Then missing multi-stop ratings are rejected", func() {
			_, err := lifecycle.ValidateRatings(2, ratings(false))
			So(errors.Is(err, lifecycle.ErrInvalidRatings), ShouldBeTrue)
		})

		Convey("Then out-of-range values are rejected", func() {
			r := ratings(true)
			r.RouteCohesion = model.IntPtr(6)
			_, err := lifecycle.ValidateRatings(2, r)
			So(errors.Is(err, lifecycle.ErrInvalidRatings), ShouldBeTrue)

			r = ratings(false)
			r.ParkingDifficulty = model.IntPtr(0)
			_, err = lifecycle.ValidateRatings(1, r)
			So(errors.Is(err, lifecycle.ErrInvalidRatings), ShouldBeTrue)
		})
	})
}
