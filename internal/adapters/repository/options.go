package repository

import (
	"time"

	"github.com/okian/offerwise/pkg/logger"
)

// Default repository configuration constants.
const (
	defaultMaxListLimit     = 500
	defaultRetryMaxElapsed  = 10 * time.Second
	defaultConnectTimeout   = 10 * time.Second
	defaultMetricsRefreshes = 5 * time.Second
)

type options struct {
	logger          logger.Logger
	maxListLimit    int
	retryMaxElapsed time.Duration
	connectTimeout  time.Duration
	metricsInterval time.Duration
}

func defaultOptions() options {
	return options{
		logger:          logger.Get().Named("repository"),
		maxListLimit:    defaultMaxListLimit,
		retryMaxElapsed: defaultRetryMaxElapsed,
		connectTimeout:  defaultConnectTimeout,
		metricsInterval: defaultMetricsRefreshes,
	}
}

// Option applies a configuration option to a Store implementation.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxListLimit caps how many rows a list call returns.
func WithMaxListLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxListLimit = n
		}
	}
}

// WithRetryMaxElapsed bounds how long Postgres calls retry transient failures.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryMaxElapsed = d
		}
	}
}

// WithConnectTimeout bounds the initial Postgres connection and migration.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.metricsInterval = interval
		}
	}
}
