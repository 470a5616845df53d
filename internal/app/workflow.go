package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/offerwise/internal/adapters/remote"
	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

// Score scores an order under the active weight set without touching the
// workflow. It backs both the manual and the quick scoring endpoints.
func (s *Service) Score(ctx context.Context, o *model.Order) (model.Score, error) {
	if err := s.ready(); err != nil {
		return model.Score{}, err
	}
	if err := validateOffer(o); err != nil {
		return model.Score{}, err
	}
	return s.score(ctx, o), nil
}

func (s *Service) score(ctx context.Context, o *model.Order) model.Score {
	ws, err := s.weights.Active(ctx)
	if err != nil {
		s.logger.Warn(ctx, "weights unavailable; using heuristic", logger.Error(err))
		ws = nil
	}
	sc := s.engine.Score(o, ws)
	metrics.RecordOfferScored(sc.Algorithm, sc.Recommendation, sc.Value)
	return sc
}

// Offer scores a new offer and starts its workflow. The order joins the
// current session when one is active.
func (s *Service) Offer(ctx context.Context, o *model.Order) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}
	if err := validateOffer(o); err != nil {
		return lifecycle.Result{}, err
	}
	order := o.Clone()
	if order.UserID == "" {
		order.UserID = s.cfg.UserID
	}
	if order.NumberOfStops < 1 {
		order.NumberOfStops = 1
	}
	s.mu.RLock()
	if s.current != nil {
		order.SessionID = s.current.ID
	}
	s.mu.RUnlock()

	order.Score = s.score(ctx, order)
	return s.machine.Offer(ctx, order)
}

// Workflow returns the in-flight order, or just the screen when idle.
func (s *Service) Workflow(_ context.Context) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}
	res, err := s.machine.Active()
	if errors.Is(err, lifecycle.ErrNoActiveOrder) {
		return res, nil
	}
	return res, err
}

// Transition names accepted by Advance.
const (
	ActionAccept    = "accept"
	ActionDecline   = "decline"
	ActionWaitStart = "wait-start"
	ActionWaitEnd   = "wait-end"
	ActionPickup    = "pickup"
	ActionDropoff   = "dropoff"
)

// Advance applies a named workflow transition.
func (s *Service) Advance(ctx context.Context, action string) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}

	var (
		res lifecycle.Result
		err error
	)
	switch action {
	case ActionAccept:
		res, err = s.machine.Accept(ctx)
	case ActionDecline:
		res, err = s.machine.Decline(ctx)
	case ActionWaitStart:
		res, err = s.machine.StartWait(ctx)
	case ActionWaitEnd:
		res, err = s.machine.EndWait(ctx)
	case ActionPickup:
		res, err = s.machine.ConfirmPickup(ctx)
	case ActionDropoff:
		res, err = s.machine.DropOff(ctx)
	default:
		return lifecycle.Result{}, fmt.Errorf("%w: unknown action %q", lifecycle.ErrInvalidTransition, action)
	}
	if err != nil {
		metrics.RecordErrorByComponent("lifecycle", action)
		return res, err
	}

	s.followStep(ctx, action, res)
	return res, nil
}

// followStep keeps the session in step with the workflow: the trip phase
// tracks pickup and delivery, and a dropped-off order joins the session.
func (s *Service) followStep(ctx context.Context, action string, res lifecycle.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}

	next := s.current
	switch res.Step {
	case lifecycle.StepAccepted, lifecycle.StepWaiting:
		next = s.sessions.SetTripPhase(next, model.TripCollecting)
	case lifecycle.StepDelivering:
		next = s.sessions.SetTripPhase(next, model.TripDelivering)
	}

	if action == ActionDropoff && res.Order != nil && res.Order.SessionID == next.ID {
		next = s.sessions.SetTripPhase(next, model.TripCollecting)
		updated, err := s.sessions.AddOrder(next, s.sessionOrders(ctx, next.ID), res.Order)
		if err != nil {
			s.logger.Warn(ctx, "order not added to session",
				logger.String("order_id", res.Order.ID), logger.Error(err))
		} else {
			next = updated
		}
	}
	s.setSessionLocked(ctx, next)
}

// ImmediateSurveys returns the immediate survey queue, oldest first.
func (s *Service) ImmediateSurveys(_ context.Context) ([]*model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.machine.ImmediateSurveys(), nil
}

// SubmitImmediateSurvey records ratings for a dropped-off order.
func (s *Service) SubmitImmediateSurvey(ctx context.Context, orderID string, in lifecycle.ImmediateSurvey) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}
	return s.machine.SubmitImmediateSurvey(ctx, orderID, in)
}

// DelayedSurveys returns orders awaiting their delayed survey.
func (s *Service) DelayedSurveys(_ context.Context) ([]*model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.machine.DelayedSurveys(), nil
}

// SubmitDelayedSurvey records the final payout and completes the order.
func (s *Service) SubmitDelayedSurvey(ctx context.Context, orderID string, in lifecycle.DelayedSurvey) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}
	res, err := s.machine.SubmitDelayedSurvey(ctx, orderID, in)
	if err != nil {
		return res, s.finalizedInHistory(ctx, orderID, err)
	}
	s.complete(ctx, res.Order)
	return res, nil
}

// DismissDelayedSurvey completes the order without delayed data.
func (s *Service) DismissDelayedSurvey(ctx context.Context, orderID string) (lifecycle.Result, error) {
	if err := s.ready(); err != nil {
		return lifecycle.Result{}, err
	}
	res, err := s.machine.DismissDelayedSurvey(ctx, orderID)
	if err != nil {
		return res, s.finalizedInHistory(ctx, orderID, err)
	}
	s.complete(ctx, res.Order)
	return res, nil
}

// finalizedInHistory maps a survey miss for an order already in history to
// ErrOrderFinalized.
func (s *Service) finalizedInHistory(ctx context.Context, orderID string, err error) error {
	if !errors.Is(err, lifecycle.ErrSurveyNotFound) {
		return err
	}
	if o, herr := s.history.GetOrder(ctx, orderID); herr == nil && o.Final() {
		return fmt.Errorf("%w: %s", lifecycle.ErrOrderFinalized, orderID)
	}
	return err
}

// complete stores a final order in history, refreshes its session and
// pushes it to the remote backend. Failures never undo the completion.
func (s *Service) complete(ctx context.Context, o *model.Order) {
	if o == nil {
		return
	}
	if err := s.history.SaveOrder(ctx, o); err != nil {
		s.logger.Error(ctx, "order not saved to history", logger.String("order_id", o.ID), logger.Error(err))
		s.notes.Error("Order "+o.ID+" could not be saved to history.", o.ID)
	}
	s.refreshSession(ctx, o)
	if err := s.remote.Submit(o); err != nil && !errors.Is(err, remote.ErrDisabled) {
		s.remoteFailed(remote.KindOrder, o.ID, err)
	}
}

// Orders lists history.
func (s *Service) Orders(ctx context.Context, f repository.OrderFilter) ([]*model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.history.ListOrders(ctx, f)
}

// OrderRank returns where an order sits among all stored orders by score.
func (s *Service) OrderRank(ctx context.Context, orderID string) (repository.Entry, error) {
	if err := s.ready(); err != nil {
		return repository.Entry{}, err
	}
	return s.history.Rank(ctx, orderID)
}

// TopOrders returns the n best-scored stored orders.
func (s *Service) TopOrders(ctx context.Context, n int) ([]repository.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.history.TopN(ctx, n)
}

// validateOffer only rejects a missing order. Malformed numbers are left to
// the extractor, which substitutes neutral values.
func validateOffer(o *model.Order) error {
	if o == nil {
		return fmt.Errorf("%w: missing order", ErrInvalidOrder)
	}
	return nil
}
