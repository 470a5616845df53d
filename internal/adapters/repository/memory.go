package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/metrics"
)

// MemoryStore is an in-process Store backed by maps and an order book.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]*model.Order
	sessions map[string]*model.Session
	book     *orderBook
	opts     options

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		orders:   make(map[string]*model.Order),
		sessions: make(map[string]*model.Session),
		book:     newOrderBook(),
		opts:     defaultOptions(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// SaveOrder implements Store.SaveOrder.
func (s *MemoryStore) SaveOrder(ctx context.Context, o *model.Order) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("save_order", float64(time.Since(start).Milliseconds())) }()

	if o == nil || o.ID == "" {
		return fmt.Errorf("%w: order needs an id", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.orders[o.ID]; ok && old.Final() {
		metrics.RecordErrorByComponent("repository", "order_finalized")
		return fmt.Errorf("%w: %s", ErrOrderFinalized, o.ID)
	}
	s.orders[o.ID] = o.Clone()
	s.book.upsert(o.ID, o.Score.Value)
	return nil
}

// GetOrder implements Store.GetOrder.
func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

// ListOrders implements Store.ListOrders.
func (s *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]*model.Order, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("list_orders", float64(time.Since(start).Milliseconds())) }()

	limit, err := s.limit(f.Limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if (f.UserID == "" || o.UserID == f.UserID) &&
			(f.SessionID == "" || o.SessionID == f.SessionID) &&
			(f.Status == "" || o.Status == f.Status) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OfferedAt.Equal(out[j].OfferedAt) {
			return out[i].OfferedAt.After(out[j].OfferedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Rank implements Store.Rank in O(log n).
func (s *MemoryStore) Rank(ctx context.Context, orderID string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("rank", float64(time.Since(start).Milliseconds())) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rank, _, ok := s.book.rank(orderID)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return entryFor(s.orders[orderID], rank), nil
}

// TopN implements Store.TopN.
func (s *MemoryStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("top_n", float64(time.Since(start).Milliseconds())) }()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.book.top(n)
	out := make([]Entry, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, entryFor(s.orders[r.id], r.rank))
	}
	return out, nil
}

// SaveSession implements Store.SaveSession.
func (s *MemoryStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session needs an id", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == model.SessionActive {
		for id, other := range s.sessions {
			if id != sess.ID && other.UserID == sess.UserID && other.Status == model.SessionActive {
				return fmt.Errorf("%w: %s", ErrActiveSessionExists, other.ID)
			}
		}
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// GetSession implements Store.GetSession.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess.Clone(), nil
}

// ListSessions implements Store.ListSessions.
func (s *MemoryStore) ListSessions(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	limit, err := s.limit(limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*model.Session, 0)
	for _, sess := range s.sessions {
		if userID == "" || sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.count()
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) limit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, ErrInvalidLimit
	case n == 0 || n > s.opts.maxListLimit:
		return s.opts.maxListLimit, nil
	default:
		return n, nil
	}
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.metricsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateHistoryOrders(s.Count(ctx))
			}
		}
	}()
}
