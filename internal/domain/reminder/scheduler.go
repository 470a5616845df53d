// Package reminder runs the single due-time scheduler for delayed order
// surveys and session-end surveys.
//
// Pending entries live in the kv store, so a restart loses nothing: Load
// rechecks every entry against the current time before the ticker starts.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

const (
	defaultInterval = 30 * time.Second
	defaultGrace    = 2 * time.Hour
)

// Event is delivered to the handler when a reminder fires or expires.
type Event struct {
	Reminder model.Reminder
	Expired  bool
}

// Handler reacts to reminder events.
type Handler func(ctx context.Context, ev Event)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the ticker period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGrace sets how long after DueAt an unresolved reminder expires.
func WithGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHandler registers the event handler.
func WithHandler(h Handler) Option {
	return func(s *Scheduler) {
		s.handler = h
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler holds pending reminders ordered by due time.
type Scheduler struct {
	mu       sync.Mutex
	store    kv.Store
	pending  []model.Reminder
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	handler  Handler
	logger   logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewScheduler creates a scheduler persisting to store.
func NewScheduler(store kv.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		interval: defaultInterval,
		grace:    defaultGrace,
		now:      time.Now,
		logger:   logger.Get().Named("reminder"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler replaces the event handler.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Load reads persisted reminders and immediately sweeps them.
func (s *Scheduler) Load(ctx context.Context) ([]Event, error) {
	var stored []model.Reminder
	if _, err := kv.GetJSON(ctx, s.store, kv.KeyReminders, &stored); err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	s.mu.Lock()
	s.pending = stored
	sortByDue(s.pending)
	s.mu.Unlock()

	s.logger.Info(ctx, "reminders loaded", logger.Int("count", len(stored)))
	return s.Sweep(ctx)
}

// Schedule adds r, replacing any entry with the same kind and ref.
// A zero ExpiresAt is set to DueAt plus the grace window.
func (s *Scheduler) Schedule(ctx context.Context, r model.Reminder) error { //nolint:gocritic // hugeParam: stored by value
	if r.Ref == "" || (r.Kind != model.ReminderOrderSurvey && r.Kind != model.ReminderSessionSurvey) {
		return fmt.Errorf("%w: kind=%q ref=%q", ErrInvalidReminder, r.Kind, r.Ref)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if r.ExpiresAt.IsZero() {
		r.ExpiresAt = r.DueAt.Add(s.grace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = without(s.pending, r.Kind, r.Ref)
	s.pending = append(s.pending, r)
	sortByDue(s.pending)
	return s.persistLocked(ctx)
}

// Dismiss removes the entry for kind and ref. It reports whether one existed.
func (s *Scheduler) Dismiss(ctx context.Context, kind, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.pending)
	s.pending = without(s.pending, kind, ref)
	if len(s.pending) == before {
		return false, nil
	}
	return true, s.persistLocked(ctx)
}

// Get returns the entry for kind and ref.
func (s *Scheduler) Get(kind, ref string) (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.pending {
		if r.Kind == kind && r.Ref == ref {
			return r, true
		}
	}
	return model.Reminder{}, false
}

// Pending returns a copy of all entries ordered by due time.
func (s *Scheduler) Pending() []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Reminder(nil), s.pending...)
}

// Due returns the entries due at now, fired or not.
func (s *Scheduler) Due(now time.Time) []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reminder
	for _, r := range s.pending {
		if r.Due(now) {
			out = append(out, r)
		}
	}
	return out
}

// Sweep fires reminders that became due and drops the expired ones. The
// handler sees each event once.
func (s *Scheduler) Sweep(ctx context.Context) ([]Event, error) {
	now := s.now().UTC()

	s.mu.Lock()
	var events []Event
	kept := s.pending[:0:0]
	for _, r := range s.pending {
		switch {
		case r.Expired(now):
			events = append(events, Event{Reminder: r, Expired: true})
		case r.Due(now) && r.NotifiedAt == nil:
			r.NotifiedAt = &now
			events = append(events, Event{Reminder: r})
			kept = append(kept, r)
		default:
			kept = append(kept, r)
		}
	}
	var err error
	if len(events) > 0 {
		s.pending = kept
		err = s.persistLocked(ctx)
	}
	handler := s.handler
	metrics.UpdatePendingReminders(len(s.pending))
	s.mu.Unlock()

	for _, ev := range events {
		if ev.Expired {
			metrics.RecordReminderExpired(ev.Reminder.Kind)
		} else {
			metrics.RecordReminderFired(ev.Reminder.Kind)
		}
		if handler != nil {
			handler(ctx, ev)
		}
	}
	return events, err
}

// Run sweeps on every tick until ctx is canceled or Shutdown is called.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error(ctx, "reminder sweep failed", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the ticker loop.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (s *Scheduler) persistLocked(ctx context.Context) error {
	metrics.UpdatePendingReminders(len(s.pending))
	if len(s.pending) == 0 {
		if err := s.store.Delete(ctx, kv.KeyReminders); err != nil {
			return fmt.Errorf("persist reminders: %w", err)
		}
		return nil
	}
	if err := kv.PutJSON(ctx, s.store, kv.KeyReminders, s.pending); err != nil {
		return fmt.Errorf("persist reminders: %w", err)
	}
	return nil
}

func without(list []model.Reminder, kind, ref string) []model.Reminder {
	out := list[:0:0]
	for _, r := range list {
		if r.Kind == kind && r.Ref == ref {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortByDue(list []model.Reminder) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].DueAt.Before(list[j].DueAt) })
}
