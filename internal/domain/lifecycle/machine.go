// Package lifecycle drives one order at a time through the driver workflow:
// offer, pickup (with optional restaurant wait), delivery, the immediate
// survey after dropoff and the delayed survey two hours later.
//
// Every transition stamps its timestamp and persists the workflow to the kv
// store so the client can resume after a reload. Persistence failures are
// reported but never undo a transition.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

const (
	defaultDelayedSurveyAfter = 2 * time.Hour
	defaultSurveyGrace        = 2 * time.Hour
)

// Scheduler registers delayed survey reminders.
type Scheduler interface {
	Schedule(ctx context.Context, r model.Reminder) error
	Dismiss(ctx context.Context, kind, ref string) (bool, error)
}

// Snapshot is the persisted form of the in-flight order.
type Snapshot struct {
	Step      string       `json:"step"`
	Order     *model.Order `json:"order"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Result is returned by every transition.
type Result struct {
	Step   string       `json:"step"`
	Screen string       `json:"screen"`
	Order  *model.Order `json:"order,omitempty"`
}

// ImmediateSurvey carries the ratings collected right after dropoff.
type ImmediateSurvey struct {
	Ratings              model.Ratings `json:"ratings"`
	WaitTimeAtRestaurant *float64      `json:"wait_time_at_restaurant,omitempty"`
}

// DelayedSurvey carries the final payout data.
type DelayedSurvey struct {
	ActualPay          float64 `json:"actual_pay"`
	ActualTotalMinutes float64 `json:"actual_total_minutes"`
	DropoffZone        string  `json:"dropoff_zone,omitempty"`
}

// Machine is the order workflow. It is safe for concurrent use.
type Machine struct {
	mu        sync.Mutex
	store     kv.Store
	scheduler Scheduler

	active    *Snapshot
	immediate []*model.Order
	delayed   []*model.Order

	now            func() time.Time
	newID          func() string
	delayedAfter   time.Duration
	grace          time.Duration
	onPersistError func(error)
	logger         logger.Logger
}

// NewMachine creates a workflow machine persisting to store.
func NewMachine(store kv.Store, scheduler Scheduler, opts ...Option) *Machine {
	m := &Machine{
		store:        store,
		scheduler:    scheduler,
		now:          time.Now,
		newID:        uuid.NewString,
		delayedAfter: defaultDelayedSurveyAfter,
		grace:        defaultSurveyGrace,
		logger:       logger.Get().Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Offer starts the workflow for a scored order. An order still sitting in
// the offered step is replaced; anything further along blocks the offer.
func (m *Machine) Offer(ctx context.Context, o *model.Order) (Result, error) {
	if o == nil {
		return Result{}, fmt.Errorf("%w: order is nil", ErrInvalidOrderFields)
	}
	if !finite(o.Score.Value) || o.Score.Value <= 0 {
		return Result{}, ErrMissingScore
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Step != StepOffered {
		return Result{}, fmt.Errorf("%w: %s is %s", ErrOrderInProgress, m.active.Order.ID, m.active.Step)
	}

	order := o.Clone()
	if order.ID == "" {
		order.ID = m.newID()
	}
	if order.OfferedAt.IsZero() {
		order.OfferedAt = m.now().UTC()
	}
	order.Status = model.OrderStatusActive
	m.active = &Snapshot{Step: StepOffered, Order: order}

	return m.commitActive(ctx, StepOffered), nil
}

// Accept moves the offered order to pickup.
func (m *Machine) Accept(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepOffered); err != nil {
		return Result{}, err
	}
	now := m.now().UTC()
	o := m.active.Order
	o.AcceptedAt = &now
	o.PickupStartAt = &now
	o.ActualStartAt = &now
	m.active.Step = StepAccepted

	return m.commitActive(ctx, StepAccepted), nil
}

// Decline discards the offered or accepted order without history.
func (m *Machine) Decline(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepOffered, StepAccepted); err != nil {
		return Result{}, err
	}
	declined := m.active.Order.Clone()
	m.active = nil
	m.persist(ctx, func() error { return m.store.Delete(ctx, kv.KeyWorkflow) })
	metrics.RecordTransition(StepDeclined)

	m.logger.Info(ctx, "order declined", logger.String("order_id", declined.ID))
	return Result{Step: StepDeclined, Screen: m.screenLocked(), Order: declined}, nil
}

// StartWait starts the restaurant wait stopwatch.
func (m *Machine) StartWait(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepAccepted, StepPickedUp); err != nil {
		return Result{}, err
	}
	now := m.now().UTC()
	m.active.Order.WaitStartAt = &now
	m.active.Order.WaitEndAt = nil
	m.active.Step = StepWaiting

	return m.commitActive(ctx, StepWaiting), nil
}

// EndWait stops the stopwatch. Ending the wait confirms the pickup.
func (m *Machine) EndWait(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepWaiting); err != nil {
		return Result{}, err
	}
	m.endWaitLocked()
	return m.pickupLocked(ctx), nil
}

// ConfirmPickup records one picked-up stop. Once every stop is collected
// the order moves to delivering.
func (m *Machine) ConfirmPickup(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepAccepted, StepPickedUp, StepWaiting); err != nil {
		return Result{}, err
	}
	if m.active.Step == StepWaiting {
		m.endWaitLocked()
	}
	return m.pickupLocked(ctx), nil
}

func (m *Machine) endWaitLocked() {
	now := m.now().UTC()
	o := m.active.Order
	o.WaitEndAt = &now
	if o.WaitStartAt != nil {
		o.WaitTimeAtRestaurant += now.Sub(*o.WaitStartAt).Minutes()
	}
}

func (m *Machine) pickupLocked(ctx context.Context) Result {
	o := m.active.Order
	o.PickedUpCount++
	stops := o.NumberOfStops
	if stops < 1 {
		stops = 1
	}
	if o.PickedUpCount >= stops {
		m.active.Step = StepDelivering
		return m.commitActive(ctx, StepDelivering)
	}
	m.active.Step = StepPickedUp
	return m.commitActive(ctx, StepPickedUp)
}

// DropOff completes delivery and queues the order for its immediate survey.
func (m *Machine) DropOff(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require(StepDelivering); err != nil {
		return Result{}, err
	}
	now := m.now().UTC()
	o := m.active.Order
	o.ActualEndAt = &now
	o.Status = model.OrderStatusDelivered

	m.immediate = append(m.immediate, o)
	m.active = nil
	m.persist(ctx, func() error { return m.store.Delete(ctx, kv.KeyWorkflow) })
	m.persistImmediateLocked(ctx)
	metrics.RecordTransition(StepDroppedOff)

	m.logger.Info(ctx, "order dropped off",
		logger.String("order_id", o.ID),
		logger.Int("immediate_pending", len(m.immediate)),
	)
	return Result{Step: StepImmediateSurveyPending, Screen: m.screenLocked(), Order: o.Clone()}, nil
}

// NextImmediateSurvey returns the oldest order awaiting its immediate survey.
func (m *Machine) NextImmediateSurvey() (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.immediate) == 0 {
		return nil, ErrNoPendingSurvey
	}
	return m.immediate[0].Clone(), nil
}

// SubmitImmediateSurvey records ratings and schedules the delayed survey.
func (m *Machine) SubmitImmediateSurvey(ctx context.Context, orderID string, s ImmediateSurvey) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := indexOf(m.immediate, orderID)
	if idx < 0 {
		if indexOf(m.delayed, orderID) >= 0 {
			return Result{}, fmt.Errorf("%w: %s already surveyed", ErrInvalidTransition, orderID)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrSurveyNotFound, orderID)
	}
	o := m.immediate[idx]
	ratings, err := ValidateRatings(o.NumberOfStops, s.Ratings)
	if err != nil {
		return Result{}, err
	}

	now := m.now().UTC()
	due := now.Add(m.delayedAfter)
	o.Ratings = ratings
	if s.WaitTimeAtRestaurant != nil && finite(*s.WaitTimeAtRestaurant) && *s.WaitTimeAtRestaurant >= 0 {
		o.WaitTimeAtRestaurant = *s.WaitTimeAtRestaurant
	}
	o.ImmediateSurveyAt = &now
	o.DelayedDueAt = &due
	metrics.RecordTransition(StepImmediateSurveyDone)

	m.immediate = append(m.immediate[:idx], m.immediate[idx+1:]...)
	m.delayed = append(m.delayed, o)
	m.persistImmediateLocked(ctx)
	m.persistDelayedLocked(ctx)

	if m.scheduler != nil {
		r := model.Reminder{Kind: model.ReminderOrderSurvey, Ref: o.ID, DueAt: due, ExpiresAt: due.Add(m.grace), CreatedAt: now}
		m.persist(ctx, func() error { return m.scheduler.Schedule(ctx, r) })
	}
	metrics.RecordTransition(StepDelayedSurveyPending)

	return Result{Step: StepDelayedSurveyPending, Screen: m.screenLocked(), Order: o.Clone()}, nil
}

// DelayedSurveys returns the orders awaiting their delayed survey, oldest due first.
func (m *Machine) DelayedSurveys() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.delayed)
}

// ImmediateSurveys returns the immediate survey queue, oldest first.
func (m *Machine) ImmediateSurveys() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.immediate)
}

// SubmitDelayedSurvey records the final payout and completes the order.
func (m *Machine) SubmitDelayedSurvey(ctx context.Context, orderID string, s DelayedSurvey) (Result, error) {
	if !finite(s.ActualPay) || s.ActualPay < 0 || !finite(s.ActualTotalMinutes) || s.ActualTotalMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: pay=%v minutes=%v", ErrInvalidActuals, s.ActualPay, s.ActualTotalMinutes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.takeDelayedLocked(orderID)
	if err != nil {
		return Result{}, err
	}
	now := m.now().UTC()
	o.DelayedSurveyAt = &now
	o.ActualPay = model.FloatPtr(s.ActualPay)
	o.ActualTotalMinutes = model.FloatPtr(s.ActualTotalMinutes)
	if z := strings.TrimSpace(s.DropoffZone); z != "" {
		o.DropoffZone = z
	}
	o.Status = model.OrderStatusComplete

	m.finishDelayedLocked(ctx, o)
	return Result{Step: StepComplete, Screen: ScreenDone, Order: o.Clone()}, nil
}

// DismissDelayedSurvey completes the order without delayed data.
func (m *Machine) DismissDelayedSurvey(ctx context.Context, orderID string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.takeDelayedLocked(orderID)
	if err != nil {
		return Result{}, err
	}
	o.Status = model.OrderStatusComplete

	m.finishDelayedLocked(ctx, o)
	return Result{Step: StepComplete, Screen: m.screenLocked(), Order: o.Clone()}, nil
}

// ExpireDue completes every delayed survey whose window closed. The
// returned orders stay valid with their delayed fields absent.
func (m *Machine) ExpireDue(ctx context.Context) []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var expired []*model.Order
	kept := m.delayed[:0:0]
	for _, o := range m.delayed {
		if o.DelayedDueAt != nil && !now.Before(o.DelayedDueAt.Add(m.grace)) {
			o.Status = model.OrderStatusExpired
			expired = append(expired, o.Clone())
			continue
		}
		kept = append(kept, o)
	}
	if len(expired) == 0 {
		return nil
	}
	m.delayed = kept
	m.persistDelayedLocked(ctx)
	for _, o := range expired {
		if m.scheduler != nil {
			id := o.ID
			m.persist(ctx, func() error {
				_, err := m.scheduler.Dismiss(ctx, model.ReminderOrderSurvey, id)
				return err
			})
		}
		metrics.RecordTransition(StepComplete)
		m.logger.Info(ctx, "delayed survey expired", logger.String("order_id", o.ID))
	}
	return expired
}

func (m *Machine) takeDelayedLocked(orderID string) (*model.Order, error) {
	idx := indexOf(m.delayed, orderID)
	if idx < 0 {
		if indexOf(m.immediate, orderID) >= 0 {
			return nil, fmt.Errorf("%w: %s awaits its immediate survey", ErrInvalidTransition, orderID)
		}
		return nil, fmt.Errorf("%w: %s", ErrSurveyNotFound, orderID)
	}
	o := m.delayed[idx]
	if o.Final() {
		return nil, fmt.Errorf("%w: %s", ErrOrderFinalized, orderID)
	}
	m.delayed = append(m.delayed[:idx], m.delayed[idx+1:]...)
	return o, nil
}

func (m *Machine) finishDelayedLocked(ctx context.Context, o *model.Order) {
	m.persistDelayedLocked(ctx)
	if m.scheduler != nil {
		m.persist(ctx, func() error {
			_, err := m.scheduler.Dismiss(ctx, model.ReminderOrderSurvey, o.ID)
			return err
		})
	}
	metrics.RecordTransition(StepComplete)
	m.logger.Info(ctx, "order complete",
		logger.String("order_id", o.ID),
		logger.Bool("delayed_data", o.DelayedSurveyAt != nil),
	)
}

// Resume reloads the persisted workflow. A corrupt or inconsistent record
// yields ErrResume with the restart screen and is cleared.
func (m *Machine) Resume(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active, m.immediate, m.delayed = nil, nil, nil

	var immediate, delayed []*model.Order
	if _, err := kv.GetJSON(ctx, m.store, kv.KeyImmediateSurveys, &immediate); err != nil {
		return m.resumeFailedLocked(ctx, kv.KeyImmediateSurveys, err)
	}
	if _, err := kv.GetJSON(ctx, m.store, kv.KeyDelayedSurveys, &delayed); err != nil {
		return m.resumeFailedLocked(ctx, kv.KeyDelayedSurveys, err)
	}
	m.immediate = compact(immediate)
	m.delayed = compact(delayed)
	metrics.UpdateImmediateSurveyQueue(len(m.immediate))

	var snap Snapshot
	found, err := kv.GetJSON(ctx, m.store, kv.KeyWorkflow, &snap)
	if err != nil {
		return m.resumeFailedLocked(ctx, kv.KeyWorkflow, err)
	}
	if !found {
		return Result{Step: "", Screen: m.screenLocked()}, nil
	}
	if err := validSnapshot(&snap); err != nil {
		return m.resumeFailedLocked(ctx, kv.KeyWorkflow, err)
	}

	m.active = &snap
	m.logger.Info(ctx, "workflow resumed",
		logger.String("order_id", snap.Order.ID),
		logger.String("step", snap.Step),
	)
	return Result{Step: snap.Step, Screen: m.screenLocked(), Order: snap.Order.Clone()}, nil
}

func (m *Machine) resumeFailedLocked(ctx context.Context, key string, cause error) (Result, error) {
	m.logger.Warn(ctx, "resume failed", logger.String("key", key), logger.Error(cause))
	metrics.RecordErrorByComponent("lifecycle", "resume_failed")
	m.persist(ctx, func() error { return m.store.Delete(ctx, key) })
	if key == kv.KeyWorkflow {
		m.active = nil
	}
	return Result{Screen: ScreenRestart}, fmt.Errorf("%w: %s: %w", ErrResume, key, cause)
}

func validSnapshot(s *Snapshot) error {
	switch {
	case !IsActiveStep(s.Step):
		return fmt.Errorf("unknown step %q", s.Step)
	case s.Order == nil:
		return fmt.Errorf("step %q has no order", s.Step)
	case s.Order.ID == "":
		return fmt.Errorf("order has no id")
	case !finite(s.Order.Score.Value) || s.Order.Score.Value <= 0:
		return ErrMissingScore
	}
	return nil
}

// Active returns the in-flight order and its step, or ErrNoActiveOrder.
func (m *Machine) Active() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Result{Screen: m.screenLocked()}, ErrNoActiveOrder
	}
	return Result{Step: m.active.Step, Screen: m.screenLocked(), Order: m.active.Order.Clone()}, nil
}

// Screen returns what the client should show now.
func (m *Machine) Screen() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenLocked()
}

// screenLocked prefers the immediate survey, then the in-flight order, then
// any delayed survey that is due.
func (m *Machine) screenLocked() string {
	if len(m.immediate) > 0 {
		return ScreenImmediateSurvey
	}
	if m.active != nil {
		return ScreenFor(m.active.Step)
	}
	now := m.now()
	for _, o := range m.delayed {
		if o.DelayedDueAt != nil && !now.Before(*o.DelayedDueAt) {
			return ScreenDelayedSurvey
		}
	}
	return ScreenOffer
}

func (m *Machine) require(steps ...string) error {
	if m.active == nil {
		return ErrNoActiveOrder
	}
	for _, s := range steps {
		if m.active.Step == s {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s is %s, want one of %v", ErrInvalidTransition, m.active.Order.ID, m.active.Step, steps)
}

func (m *Machine) commitActive(ctx context.Context, step string) Result {
	m.active.UpdatedAt = m.now().UTC()
	snap := *m.active
	m.persist(ctx, func() error { return kv.PutJSON(ctx, m.store, kv.KeyWorkflow, snap) })
	metrics.RecordTransition(step)
	m.logger.Debug(ctx, "transition",
		logger.String("order_id", snap.Order.ID),
		logger.String("step", step),
		logger.Int("picked_up", snap.Order.PickedUpCount),
	)
	return Result{Step: step, Screen: m.screenLocked(), Order: snap.Order.Clone()}
}

func (m *Machine) persistImmediateLocked(ctx context.Context) {
	metrics.UpdateImmediateSurveyQueue(len(m.immediate))
	m.persistList(ctx, kv.KeyImmediateSurveys, m.immediate)
}

func (m *Machine) persistDelayedLocked(ctx context.Context) {
	m.persistList(ctx, kv.KeyDelayedSurveys, m.delayed)
}

func (m *Machine) persistList(ctx context.Context, key string, list []*model.Order) {
	if len(list) == 0 {
		m.persist(ctx, func() error { return m.store.Delete(ctx, key) })
		return
	}
	snapshot := cloneAll(list)
	m.persist(ctx, func() error { return kv.PutJSON(ctx, m.store, key, snapshot) })
}

func (m *Machine) persist(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		metrics.RecordErrorByComponent("lifecycle", "persist_failed")
		m.logger.Error(ctx, "persist failed", logger.Error(err))
		if m.onPersistError != nil {
			m.onPersistError(err)
		}
	}
}

func indexOf(list []*model.Order, id string) int {
	for i, o := range list {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func compact(list []*model.Order) []*model.Order {
	out := list[:0]
	for _, o := range list {
		if o != nil && o.ID != "" {
			out = append(out, o)
		}
	}
	return out
}

func cloneAll(list []*model.Order) []*model.Order {
	out := make([]*model.Order, len(list))
	for i, o := range list {
		out[i] = o.Clone()
	}
	return out
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
