// Package queue holds pending durable writes until the flusher drains them.
//
// Writes are coalesced by key: enqueuing a key that is already pending
// replaces its value in place (last write wins) while keeping the key's
// original position, so a burst of updates to the same key costs one write.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/offerwise/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Write is one pending key-value mutation.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
	At     time.Time
}

// Queue accepts writes and hands them to a single consumer in batches.
type Queue interface {
	// Enqueue adds or replaces the pending write for w.Key.
	// Returns false if the queue is closed or a new key would exceed capacity.
	Enqueue(ctx context.Context, w Write) bool

	// Pending returns the queued write for key, if any.
	Pending(key string) (Write, bool)

	// Drain removes and returns all pending writes in first-enqueue order.
	Drain() []Write

	// Ready signals that at least one write was enqueued since the last signal.
	Ready() <-chan struct{}

	// Len returns the number of distinct pending keys.
	Len() int

	// Close stops accepting writes. Pending writes stay drainable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// CoalescingQueue implements Queue with a map plus insertion order.
type CoalescingQueue struct {
	mu       sync.Mutex
	pending  map[string]Write
	order    []string
	capacity int
	ready    chan struct{}
	closed   bool
}

// NewCoalescingQueue creates a new queue with configuration options.
func NewCoalescingQueue(opts ...Option) *CoalescingQueue {
	q := &CoalescingQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.pending = make(map[string]Write, q.capacity)
	q.ready = make(chan struct{}, 1)

	metrics.UpdatePendingWrites(0)
	return q
}

// Enqueue adds or replaces the pending write for w.Key.
func (q *CoalescingQueue) Enqueue(ctx context.Context, w Write) bool { //nolint:gocritic // hugeParam: Write is stored by value
	if ctx.Err() != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if _, ok := q.pending[w.Key]; ok {
		q.pending[w.Key] = w
		q.mu.Unlock()
		metrics.RecordPersistCoalesced()
		q.signal()
		return true
	}

	if len(q.pending) >= q.capacity {
		q.mu.Unlock()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	q.pending[w.Key] = w
	q.order = append(q.order, w.Key)
	size := len(q.pending)
	q.mu.Unlock()

	metrics.UpdatePendingWrites(size)
	q.signal()
	return true
}

func (q *CoalescingQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pending returns the queued write for key, if any.
func (q *CoalescingQueue) Pending(key string) (Write, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.pending[key]
	return w, ok
}

// Drain removes and returns all pending writes in first-enqueue order.
func (q *CoalescingQueue) Drain() []Write {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return nil
	}
	out := make([]Write, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.pending[k])
	}
	q.pending = make(map[string]Write, q.capacity)
	q.order = nil

	metrics.UpdatePendingWrites(0)
	return out
}

// Ready signals that writes are waiting.
func (q *CoalescingQueue) Ready() <-chan struct{} { return q.ready }

// Len returns the number of distinct pending keys.
func (q *CoalescingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting writes.
func (q *CoalescingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *CoalescingQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
