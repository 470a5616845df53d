package service

import (
	"context"

	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/reminder"
	"github.com/okian/offerwise/pkg/logger"
)

// onReminder handles due and expired reminders for both kinds.
func (s *Service) onReminder(ctx context.Context, ev reminder.Event) {
	r := ev.Reminder
	switch {
	case r.Kind == model.ReminderOrderSurvey && !ev.Expired:
		s.notes.Info("Delayed survey due: how much did order "+r.Ref+" really pay?", r.Ref)
	case r.Kind == model.ReminderOrderSurvey:
		for _, o := range s.machine.ExpireDue(ctx) {
			s.complete(ctx, o)
		}
	case r.Kind == model.ReminderSessionSurvey && !ev.Expired:
		s.notes.Info("Session survey due for session "+r.Ref+".", r.Ref)
	case r.Kind == model.ReminderSessionSurvey:
		s.logger.Info(ctx, "session survey window closed", logger.String("session_id", r.Ref))
	}
}
