// Package persist layers debounced, coalesced writes over a kv.Store.
//
// A Writer is itself a kv.Store: reads see pending writes first, so callers
// never observe their own writes going missing while the flusher waits.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/offerwise/internal/adapters/kv"
	"github.com/okian/offerwise/internal/adapters/mq/queue"
	"github.com/okian/offerwise/internal/adapters/mq/worker"
	"github.com/okian/offerwise/pkg/logger"
)

// Options configures a Writer.
type Options struct {
	Debounce time.Duration
	Capacity int
	OnError  func(error)
	Logger   logger.Logger
}

// Writer buffers writes to a backing store.
type Writer struct {
	backing kv.Store
	queue   *queue.CoalescingQueue
	flusher *worker.Flusher
	cancel  context.CancelFunc
}

var _ kv.Store = (*Writer)(nil)

// NewWriter starts a writer over backing. Close must be called to flush.
func NewWriter(ctx context.Context, backing kv.Store, opts Options) *Writer {
	var qopts []queue.Option
	if opts.Capacity > 0 {
		qopts = append(qopts, queue.WithCapacity(opts.Capacity))
	}
	q := queue.NewCoalescingQueue(qopts...)

	wopts := []worker.Option{worker.WithName("persist"), worker.WithErrorHandler(opts.OnError)}
	if opts.Debounce > 0 {
		wopts = append(wopts, worker.WithDebounce(opts.Debounce))
	}
	if opts.Logger != nil {
		wopts = append(wopts, worker.WithLogger(opts.Logger))
	}
	f := worker.NewFlusher(q, backing, wopts...)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go f.Run(runCtx)

	return &Writer{backing: backing, queue: q, flusher: f, cancel: cancel}
}

// Get returns the pending value for key if one is queued, else the stored one.
func (w *Writer) Get(ctx context.Context, key string) ([]byte, error) {
	if p, ok := w.queue.Pending(key); ok {
		if p.Delete {
			return nil, kv.ErrNotFound
		}
		return append([]byte(nil), p.Value...), nil
	}
	return w.backing.Get(ctx, key)
}

// Put queues a write of value at key.
func (w *Writer) Put(ctx context.Context, key string, value []byte) error {
	return w.enqueue(ctx, queue.Write{Key: key, Value: append([]byte(nil), value...), At: time.Now()})
}

// Delete queues removal of key.
func (w *Writer) Delete(ctx context.Context, key string) error {
	return w.enqueue(ctx, queue.Write{Key: key, Delete: true, At: time.Now()})
}

func (w *Writer) enqueue(ctx context.Context, wr queue.Write) error {
	if w.queue.IsClosed() {
		return fmt.Errorf("%s: %w", wr.Key, queue.ErrClosed)
	}
	if !w.queue.Enqueue(ctx, wr) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w", wr.Key, queue.ErrFull)
	}
	return nil
}

// Flush writes everything pending now.
func (w *Writer) Flush(ctx context.Context) error {
	return w.flusher.Flush(ctx)
}

// Pending reports the number of keys waiting to be written.
func (w *Writer) Pending() int { return w.queue.Len() }

// Close stops accepting writes and flushes what is pending.
func (w *Writer) Close(ctx context.Context) error {
	_ = w.queue.Close()
	err := w.flusher.Shutdown(ctx)
	w.cancel()
	if ferr := w.flusher.Flush(ctx); ferr != nil {
		return ferr
	}
	return err
}

// WithWriter runs fn against a fresh Writer and flushes before returning,
// whether fn succeeds or not.
func WithWriter(ctx context.Context, backing kv.Store, opts Options, fn func(kv.Store) error) error {
	w := NewWriter(ctx, backing, opts)
	fnErr := fn(w)
	closeErr := w.Close(ctx)
	if fnErr != nil {
		return fnErr
	}
	return closeErr
}
