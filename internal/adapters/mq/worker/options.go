package worker

import (
	"time"

	"github.com/okian/offerwise/pkg/logger"
)

// Option applies a configuration option to the Flusher.
type Option func(*Flusher)

// WithName sets the flusher name for identification and logging.
func WithName(name string) Option {
	return func(f *Flusher) {
		if name != "" {
			f.name = name
		}
	}
}

// WithLogger sets a custom logger for the flusher.
func WithLogger(l logger.Logger) Option {
	return func(f *Flusher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithDebounce sets how long the queue must stay quiet before a flush.
func WithDebounce(d time.Duration) Option {
	return func(f *Flusher) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// WithErrorHandler registers a callback for failed flushes.
func WithErrorHandler(fn func(error)) Option {
	return func(f *Flusher) {
		f.onError = fn
	}
}
