// Package notify keeps a bounded feed of user-facing messages. Producers
// never block; the oldest entry is dropped once the feed is full.
package notify

import (
	"sync"
	"time"
)

// Levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification is one message for the driver.
type Notification struct {
	Seq       uint64    `json:"seq"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Ref       string    `json:"ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Option applies a configuration option to the Feed.
type Option func(*Feed)

// WithCapacity sets the ring size.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.buf = make([]Notification, n)
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

// Feed is a fixed-size ring of notifications, safe for concurrent use.
type Feed struct {
	mu   sync.Mutex
	buf  []Notification
	head int // next write slot
	size int
	seq  uint64
	now  func() time.Time
}

// NewFeed creates a feed holding the last 100 notifications by default.
func NewFeed(opts ...Option) *Feed {
	f := &Feed{buf: make([]Notification, 100), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Push appends a notification and returns its sequence number.
func (f *Feed) Push(level, message, ref string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.buf[f.head] = Notification{
		Seq:       f.seq,
		Level:     level,
		Message:   message,
		Ref:       ref,
		CreatedAt: f.now().UTC(),
	}
	f.head = (f.head + 1) % len(f.buf)
	if f.size < len(f.buf) {
		f.size++
	}
	return f.seq
}

// Info pushes an info notification.
func (f *Feed) Info(message, ref string) uint64 { return f.Push(LevelInfo, message, ref) }

// Warn pushes a warning notification.
func (f *Feed) Warn(message, ref string) uint64 { return f.Push(LevelWarning, message, ref) }

// Error pushes an error notification.
func (f *Feed) Error(message, ref string) uint64 { return f.Push(LevelError, message, ref) }

// Since returns notifications with Seq > after, oldest first.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, 0, f.size)
	start := (f.head - f.size + len(f.buf)) % len(f.buf)
	for i := 0; i < f.size; i++ {
		n := f.buf[(start+i)%len(f.buf)]
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of retained notifications.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Last returns the sequence number of the newest notification.
func (f *Feed) Last() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}
