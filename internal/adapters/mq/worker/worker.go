// Package worker runs the background flusher that moves coalesced writes
// from the pending queue into durable storage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/offerwise/internal/adapters/mq/queue"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

// Default flusher configuration constants.
const (
	defaultDebounce = 500 * time.Millisecond
)

// Queue defines how the flusher receives pending writes.
type Queue interface {
	Enqueue(ctx context.Context, w queue.Write) bool
	Pending(key string) (queue.Write, bool)
	Drain() []queue.Write
	Ready() <-chan struct{}
}

// Sink is the durable store the flusher writes into.
type Sink interface {
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Worker drains the queue until stopped.
type Worker interface {
	// Run starts the flush loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the loop after a final flush.
	Shutdown(ctx context.Context) error
}

// Flusher implements Worker with a trailing debounce: a flush happens once
// the queue has been quiet for the debounce interval.
type Flusher struct {
	queue    Queue
	sink     Sink
	name     string
	debounce time.Duration
	onError  func(error)

	flushMu sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewFlusher creates a new flusher with configuration options.
func NewFlusher(q Queue, sink Sink, opts ...Option) *Flusher {
	f := &Flusher{
		queue:    q,
		sink:     sink,
		name:     "flusher",
		debounce: defaultDebounce,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("flusher"),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.name != "flusher" {
		f.logger = f.logger.Named(f.name)
	}

	return f
}

// Run starts the flush loop.
func (f *Flusher) Run(ctx context.Context) {
	defer close(f.done)

	timer := time.NewTimer(f.debounce)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			f.finalFlush()
			return
		case <-f.shutdown:
			f.finalFlush()
			return
		case <-f.queue.Ready():
			timer.Reset(f.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := f.Flush(ctx); err != nil {
				f.logger.Error(ctx, "flush failed", logger.Error(err))
			}
		}
	}
}

func (f *Flusher) finalFlush() {
	ctx := context.Background()
	if err := f.Flush(ctx); err != nil {
		f.logger.Error(ctx, "final flush failed", logger.Error(err))
	}
}

// Flush writes every pending write to the sink now. Failed writes are put
// back on the queue unless a newer write for the same key arrived meanwhile.
func (f *Flusher) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	batch := f.queue.Drain()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	var errs []error
	for _, w := range batch {
		var err error
		if w.Delete {
			err = f.sink.Delete(ctx, w.Key)
		} else {
			err = f.sink.Put(ctx, w.Key, w.Value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Key, err))
			if _, newer := f.queue.Pending(w.Key); !newer {
				f.queue.Enqueue(context.WithoutCancel(ctx), w)
			}
		}
	}
	metrics.RecordPersistFlush(len(batch), float64(time.Since(start).Milliseconds()))

	if len(errs) == 0 {
		f.logger.Debug(ctx, "flushed pending writes", logger.Int("count", len(batch)))
		return nil
	}

	err := errors.Join(errs...)
	metrics.RecordErrorByComponent("flusher", "write_failed")
	if f.onError != nil {
		f.onError(err)
	}
	return err
}

// Shutdown stops the loop and waits for the final flush.
func (f *Flusher) Shutdown(ctx context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdown) })

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		f.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
