// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
//
// It owns every component as an explicit instance: the persistence writer,
// weight store, scoring engine, order workflow, session aggregator, reminder
// scheduler, history repository, remote sync client and notification feed.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/adapters/persist"
	"github.com/okian/offerwise/internal/adapters/remote"
	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/config"
	"github.com/okian/offerwise/internal/domain/features"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/notify"
	"github.com/okian/offerwise/internal/domain/reminder"
	"github.com/okian/offerwise/internal/domain/scoring"
	"github.com/okian/offerwise/internal/domain/session"
	"github.com/okian/offerwise/internal/domain/weights"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Service implements the API dependencies for the driver assistant.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	now    func() time.Time
	logger logger.Logger

	// Core components
	backing   kv.Store
	writer    *persist.Writer
	engine    *scoring.Engine
	weights   *weights.Store
	machine   *lifecycle.Machine
	sessions  *session.Aggregator
	scheduler *reminder.Scheduler
	history   repository.Store
	remote    *remote.Client
	notes     *notify.Feed

	// Session state, guarded by mu.
	current *model.Session

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStore sets the durable key-value store. Defaults to files under
// the configured data dir.
func WithStore(store kv.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.backing = store
		}
	}
}

// WithHistory sets the history repository. Defaults to Postgres when a
// database URL is configured and to memory otherwise.
func WithHistory(h repository.Store) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithRemote sets the remote sync client.
func WithRemote(c *remote.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.remote = c
		}
	}
}

// New constructs a new Service. Components are built in Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(context.Background()),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components, restores persisted state and starts the
// background loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting offerwise service...")

	if err := s.buildLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.restoreLocked(runCtx)
	s.started = true
	s.mu.Unlock()

	// The reminder handler takes mu, so the catch-up sweep runs unlocked.
	if _, err := s.scheduler.Load(runCtx); err != nil {
		s.logger.Warn(ctx, "reminders not restored", logger.Error(err))
		_ = s.writer.Delete(runCtx, kv.KeyReminders)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.runSystemMetrics(runCtx)
	}()

	s.logger.Info(ctx, "offerwise service started",
		logger.String("data_dir", s.cfg.DataDir),
		logger.Bool("postgres", s.cfg.DatabaseURL != ""),
		logger.Bool("remote_sync", s.remote.Enabled()),
	)
	return nil
}

func (s *Service) buildLocked(ctx context.Context) error {
	cfg := s.cfg
	if s.backing == nil {
		fs, err := kv.NewFileStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir: %w", err)
		}
		s.backing = fs
	}
	// History opens before the writer so a failed connect leaves no flusher running.
	if s.history == nil {
		if cfg.DatabaseURL != "" {
			pg, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL,
				repository.WithLogger(s.logger.Named("history")))
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			s.history = pg
		} else {
			s.history = repository.NewMemoryStore(ctx, repository.WithLogger(s.logger.Named("history")))
		}
	}
	s.notes = notify.NewFeed(notify.WithClock(s.now))
	s.writer = persist.NewWriter(ctx, s.backing, persist.Options{
		Debounce: cfg.Debounce(),
		OnError:  s.persistFailed,
		Logger:   s.logger.Named("persist"),
	})

	extractor := features.NewExtractor(features.WithPopularZones(cfg.PopularZones))
	s.engine = scoring.NewEngine(
		scoring.WithExtractor(extractor),
		scoring.WithThresholds(scoring.Thresholds{
			TakeAtOrAbove:         cfg.TakeThreshold,
			QuickDeclineAtOrBelow: cfg.QuickDeclineThreshold,
		}),
		scoring.WithClock(s.now),
	)
	s.weights = weights.NewStore(s.writer, s.engine,
		weights.WithPriorBlend(cfg.TrainPriorBlend),
		weights.WithExtractor(extractor),
		weights.WithClock(s.now),
		weights.WithLogger(s.logger.Named("weights")),
	)
	s.scheduler = reminder.NewScheduler(s.writer,
		reminder.WithInterval(cfg.ReminderInterval()),
		reminder.WithGrace(cfg.SurveyGrace()),
		reminder.WithClock(s.now),
		reminder.WithHandler(s.onReminder),
		reminder.WithLogger(s.logger.Named("reminder")),
	)
	s.machine = lifecycle.NewMachine(s.writer, s.scheduler,
		lifecycle.WithClock(s.now),
		lifecycle.WithDelayedSurveyAfter(cfg.DelayedSurveyAfter()),
		lifecycle.WithSurveyGrace(cfg.SurveyGrace()),
		lifecycle.WithPersistErrorHandler(s.persistFailed),
		lifecycle.WithLogger(s.logger.Named("lifecycle")),
	)
	s.sessions = session.NewAggregator(session.WithDelayedSurveyAfter(cfg.DelayedSurveyAfter()))

	if s.remote == nil {
		s.remote = remote.NewClient(cfg.RemoteURL,
			remote.WithTimeout(cfg.RemoteTimeout()),
			remote.WithMaxRetries(uint64(cfg.RemoteMaxRetries)), //nolint:gosec // validated non-negative
			remote.WithErrorHandler(s.remoteFailed),
			remote.WithLogger(s.logger.Named("remote")),
		)
	}
	return nil
}

// restoreLocked reloads weights, the workflow and the current session.
// Failures become notifications; the service still starts.
func (s *Service) restoreLocked(ctx context.Context) {
	if _, err := s.weights.Load(ctx); err != nil {
		s.logger.Warn(ctx, "weights unavailable; using heuristic", logger.Error(err))
		s.notes.Warn("Saved weights could not be read; using default scoring.", "")
		_ = s.weights.Reset(ctx)
	}

	if _, err := s.machine.Resume(ctx); err != nil {
		s.logger.Warn(ctx, "workflow not resumed", logger.Error(err))
		s.notes.Error("The last order could not be restored. Please start over.", "")
	}

	var current model.Session
	found, err := kv.GetJSON(ctx, s.writer, kv.KeySession, &current)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "session not resumed", logger.Error(err))
		s.notes.Error("The current session could not be restored.", "")
		_ = s.writer.Delete(ctx, kv.KeySession)
	case found && current.Status == model.SessionActive:
		s.current = &current
	case !found:
		// The local copy is gone but history may still hold the open shift.
		if recent, herr := s.history.ListSessions(ctx, s.cfg.UserID, 1); herr == nil &&
			len(recent) == 1 && recent[0].Status == model.SessionActive {
			s.current = recent[0]
			s.logger.Info(ctx, "session adopted from history", logger.String("session_id", recent[0].ID))
		}
	}
	if s.current != nil {
		metrics.UpdateSessionTotals(s.current.TotalOrders, s.current.TotalEarnings, s.current.TotalHours)
	}
}

// Stop flushes pending writes and shuts the background loops down.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping offerwise service...")

	var errs []error
	if err := s.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.wg.Wait()

	if err := s.remote.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := s.writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("persist: %w", err))
	}
	if err := s.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}

	s.logger.Info(ctx, "offerwise service stopped")
	return errors.Join(errs...)
}

// Notifications returns notifications newer than after.
func (s *Service) Notifications(after uint64) []notify.Notification {
	if s.notes == nil {
		return nil
	}
	return s.notes.Since(after)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["screen"] = s.machine.Screen()
	if res, err := s.machine.Active(); err == nil {
		stats["step"] = res.Step
		stats["activeOrder"] = res.Order.ID
	}
	stats["immediateSurveys"] = len(s.machine.ImmediateSurveys())
	stats["delayedSurveys"] = len(s.machine.DelayedSurveys())
	stats["pendingReminders"] = len(s.scheduler.Pending())
	stats["pendingWrites"] = s.writer.Pending()
	stats["historyOrders"] = s.history.Count(ctx)
	stats["notifications"] = s.notes.Len()
	stats["remoteSync"] = s.remote.Enabled()
	stats["remoteBreaker"] = s.remote.State().String()
	if ws, err := s.weights.Active(ctx); err == nil && ws != nil {
		stats["weightVersion"] = ws.Version
	}
	if s.current != nil {
		stats["session"] = s.current.ID
		stats["sessionOrders"] = s.current.TotalOrders
		stats["sessionEarnings"] = s.current.TotalEarnings
		stats["sessionHours"] = s.current.TotalHours
	}
	return stats
}

func (s *Service) persistFailed(err error) {
	s.logger.Error(context.Background(), "persistence failed", logger.Error(err))
	metrics.RecordErrorByComponent("persist", "write_failed")
	if s.notes != nil {
		s.notes.Error("Changes could not be saved to disk. They are kept in memory.", "")
	}
}

func (s *Service) remoteFailed(kind, ref string, err error) {
	metrics.RecordErrorByComponent("remote", kind)
	s.notes.Warn(fmt.Sprintf("Sync of %s %s failed: %v", kind, ref, err), ref)
}

func (s *Service) runSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
			if s.history != nil {
				metrics.UpdateHistoryOrders(s.history.Count(ctx))
			}
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
