package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/adapters/remote"
	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/session"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

// StartSession opens a shift for the configured driver.
func (s *Service) StartSession(ctx context.Context) (*model.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, s.current.ID)
	}
	sess := s.sessions.Start(s.cfg.UserID, s.now())
	if err := s.history.SaveSession(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, fmt.Errorf("%w: %w", ErrSessionActive, err)
		}
		s.logger.Warn(ctx, "session not saved to history", logger.Error(err))
	}
	s.setSessionLocked(ctx, sess)
	s.logger.Info(ctx, "session started", logger.String("session_id", sess.ID))
	return sess.Clone(), nil
}

// CurrentSession returns the active session.
func (s *Service) CurrentSession(_ context.Context) (*model.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, session.ErrNoSession
	}
	return s.current.Clone(), nil
}

// EndSession closes the active session and schedules its survey reminder.
func (s *Service) EndSession(ctx context.Context) (*model.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ended, err := s.sessions.End(s.current, s.now())
	if err != nil {
		return nil, err
	}
	if ended.DelayedDueAt != nil {
		r := model.Reminder{Kind: model.ReminderSessionSurvey, Ref: ended.ID, DueAt: *ended.DelayedDueAt}
		if err := s.scheduler.Schedule(ctx, r); err != nil {
			s.persistFailed(err)
		}
	}
	if err := s.history.SaveSession(ctx, ended); err != nil {
		s.logger.Error(ctx, "session not saved to history", logger.String("session_id", ended.ID), logger.Error(err))
		s.notes.Error("Session "+ended.ID+" could not be saved to history.", ended.ID)
	}
	if err := s.remote.Submit(ended); err != nil && !errors.Is(err, remote.ErrDisabled) {
		s.remoteFailed(remote.KindSession, ended.ID, err)
	}

	s.current = nil
	if err := s.writer.Delete(ctx, kv.KeySession); err != nil {
		s.persistFailed(err)
	}
	metrics.UpdateSessionTotals(0, 0, 0)
	s.logger.Info(ctx, "session ended",
		logger.String("session_id", ended.ID),
		logger.Int("orders", ended.TotalOrders),
		logger.Float64("earnings", ended.TotalEarnings),
	)
	return ended, nil
}

// RecalculateSession rebuilds the active session's totals from its orders.
func (s *Service) RecalculateSession(ctx context.Context) (*model.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, session.ErrNoSession
	}
	next, err := s.sessions.Recalculate(s.current, s.sessionOrders(ctx, s.current.ID))
	if err != nil {
		return nil, err
	}
	s.setSessionLocked(ctx, next)
	return next.Clone(), nil
}

// refreshSession folds a completed order's actuals into its session, whether
// that session is still active or already in history.
func (s *Service) refreshSession(ctx context.Context, o *model.Order) {
	if o.SessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.ID == o.SessionID {
		next, err := s.sessions.UpdateOrder(s.current, s.sessionOrders(ctx, o.SessionID), o)
		if err != nil {
			s.logger.Warn(ctx, "session not refreshed", logger.String("order_id", o.ID), logger.Error(err))
			return
		}
		s.setSessionLocked(ctx, next)
		return
	}

	past, err := s.history.GetSession(ctx, o.SessionID)
	if err != nil {
		s.logger.Debug(ctx, "order session not in history", logger.String("session_id", o.SessionID), logger.Error(err))
		return
	}
	next, err := s.sessions.UpdateOrder(past, s.sessionOrders(ctx, o.SessionID), o)
	if err != nil {
		s.logger.Warn(ctx, "ended session not refreshed", logger.String("session_id", past.ID), logger.Error(err))
		return
	}
	if err := s.history.SaveSession(ctx, next); err != nil {
		s.logger.Warn(ctx, "ended session not saved", logger.String("session_id", past.ID), logger.Error(err))
		return
	}
	if err := s.remote.Submit(next); err != nil && !errors.Is(err, remote.ErrDisabled) {
		s.remoteFailed(remote.KindSession, next.ID, err)
	}
}

// sessionOrders collects every order of a session: history plus the orders
// still waiting for a survey.
func (s *Service) sessionOrders(ctx context.Context, sessionID string) []*model.Order {
	orders, err := s.history.ListOrders(ctx, repository.OrderFilter{SessionID: sessionID})
	if err != nil {
		s.logger.Warn(ctx, "session history unavailable", logger.String("session_id", sessionID), logger.Error(err))
	}
	for _, o := range append(s.machine.ImmediateSurveys(), s.machine.DelayedSurveys()...) {
		if o.SessionID == sessionID {
			orders = append(orders, o)
		}
	}
	return orders
}

func (s *Service) setSessionLocked(ctx context.Context, next *model.Session) {
	s.current = next
	metrics.UpdateSessionTotals(next.TotalOrders, next.TotalEarnings, next.TotalHours)
	if err := kv.PutJSON(ctx, s.writer, kv.KeySession, next); err != nil {
		s.persistFailed(err)
	}
}
