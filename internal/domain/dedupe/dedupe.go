// Package dedupe tracks idempotency keys so a retried request is applied
// at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	defaultMaxSize = 10000
	defaultTTL     = 10 * time.Minute
)

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the request may be retried. Used when the
	// request failed after the key was recorded.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key  string
	seen time.Time
}

// inMemoryDeduper keeps keys in insertion order. The oldest key is evicted
// once maxSize is reached, and keys older than ttl count as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord atomically checks if key was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expireLocked(now)

	if _, ok := d.index[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.removeLocked(d.order.Front())
	}
	d.index[key] = d.order.PushBack(entry{key: key, seen: now})
	return false
}

// Unrecord forgets key.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[key]; ok {
		d.removeLocked(el)
	}
}

// Size returns the number of live keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked(d.now())
	return int64(d.order.Len())
}

// expireLocked drops keys older than ttl. Keys are in insertion order, so
// it stops at the first live one.
func (d *inMemoryDeduper) expireLocked(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if now.Sub(el.Value.(entry).seen) < d.ttl {
			return
		}
		d.removeLocked(el)
	}
}

func (d *inMemoryDeduper) removeLocked(el *list.Element) {
	delete(d.index, el.Value.(entry).key)
	d.order.Remove(el)
}
