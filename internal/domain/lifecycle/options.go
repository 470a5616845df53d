package lifecycle

import (
	"time"

	"github.com/okian/offerwise/pkg/logger"
)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithClock sets the time source for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDelayedSurveyAfter sets the delay between the immediate survey and
// the delayed survey becoming due.
func WithDelayedSurveyAfter(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.delayedAfter = d
		}
	}
}

// WithSurveyGrace sets how long a due delayed survey stays open.
func WithSurveyGrace(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.grace = d
		}
	}
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithPersistErrorHandler receives persistence failures. The transition
// itself still succeeds in memory.
func WithPersistErrorHandler(fn func(error)) Option {
	return func(m *Machine) {
		m.onPersistError = fn
	}
}

// WithLogger sets a custom logger for the machine.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}
