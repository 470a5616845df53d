// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and OFFERWISE_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir holds the durable key-value files.
	DataDir string `koanf:"data_dir"`

	// DebounceMS is the write-coalescing window for persistence.
	DebounceMS int `koanf:"debounce_ms"`

	// DelayedSurveyMinutes is how long after dropoff the delayed survey is due.
	DelayedSurveyMinutes int `koanf:"delayed_survey_minutes"`

	// SurveyGraceMinutes is how long a due delayed survey stays open.
	SurveyGraceMinutes int `koanf:"survey_grace_minutes"`

	// ReminderIntervalSec is the reminder sweep period.
	ReminderIntervalSec int `koanf:"reminder_interval_sec"`

	// TakeThreshold is the 1..10 cut-off for the manual/admin path.
	TakeThreshold float64 `koanf:"take_threshold"`

	// QuickDeclineThreshold is the 1..4 cut-off for the live path.
	QuickDeclineThreshold int `koanf:"quick_decline_threshold"`

	// PopularZones lists pickup zones that get the zone boost.
	PopularZones []string `koanf:"popular_zones"`

	// TrainPriorBlend is the share of the prior kept by training, in [0,1].
	TrainPriorBlend float64 `koanf:"train_prior_blend"`

	// DatabaseURL selects the Postgres history store; empty keeps it in memory.
	DatabaseURL string `koanf:"database_url"`

	// RemoteURL is the collaborator backend; empty disables remote sync.
	RemoteURL string `koanf:"remote_url"`

	// RemoteTimeoutMS bounds a single remote call.
	RemoteTimeoutMS int `koanf:"remote_timeout_ms"`

	// RemoteMaxRetries bounds retries of a failing remote call.
	RemoteMaxRetries int `koanf:"remote_max_retries"`

	// RateLimitPerMin caps requests per client IP on /v1; 0 disables it.
	RateLimitPerMin int `koanf:"rate_limit_per_min"`

	// IdempotencyTTLSec is how long an Idempotency-Key is remembered.
	IdempotencyTTLSec int `koanf:"idempotency_ttl_sec"`

	// IdempotencyMaxKeys bounds the remembered keys; the oldest is evicted.
	IdempotencyMaxKeys int `koanf:"idempotency_max_keys"`

	// UserID identifies the driver this process serves.
	UserID string `koanf:"user_id"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLatencyBucketsMS overrides the latency histogram buckets.
	MetricsLatencyBucketsMS []float64 `koanf:"metrics_latency_buckets_ms"`
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DataDir:               "data",
		DebounceMS:            500,
		DelayedSurveyMinutes:  120,
		SurveyGraceMinutes:    120,
		ReminderIntervalSec:   30,
		TakeThreshold:         7.5,
		QuickDeclineThreshold: 2,
		PopularZones:          []string{"downtown", "midtown", "theater district", "marina", "financial district"},
		TrainPriorBlend:       0.5,
		RemoteTimeoutMS:       10_000,
		RemoteMaxRetries:      3,
		RateLimitPerMin:       600,
		IdempotencyTTLSec:     600,
		IdempotencyMaxKeys:    10_000,
		UserID:                "driver",
		MetricsNamespace:      "offerwise",
		MetricsSubsystem:      "driver",
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DataDir) == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.DebounceMS < 0:
		return fmt.Errorf("%w: debounce_ms must not be negative", ErrInvalidConfig)
	case c.DelayedSurveyMinutes <= 0:
		return fmt.Errorf("%w: delayed_survey_minutes must be positive", ErrInvalidConfig)
	case c.SurveyGraceMinutes <= 0:
		return fmt.Errorf("%w: survey_grace_minutes must be positive", ErrInvalidConfig)
	case c.ReminderIntervalSec <= 0:
		return fmt.Errorf("%w: reminder_interval_sec must be positive", ErrInvalidConfig)
	case c.TakeThreshold < 1 || c.TakeThreshold > 10:
		return fmt.Errorf("%w: take_threshold must be in [1,10]", ErrInvalidConfig)
	case c.QuickDeclineThreshold < 1 || c.QuickDeclineThreshold > 4:
		return fmt.Errorf("%w: quick_decline_threshold must be in [1,4]", ErrInvalidConfig)
	case c.TrainPriorBlend < 0 || c.TrainPriorBlend > 1:
		return fmt.Errorf("%w: train_prior_blend must be in [0,1]", ErrInvalidConfig)
	case c.RemoteTimeoutMS <= 0:
		return fmt.Errorf("%w: remote_timeout_ms must be positive", ErrInvalidConfig)
	case c.RemoteMaxRetries < 0:
		return fmt.Errorf("%w: remote_max_retries must not be negative", ErrInvalidConfig)
	case c.RateLimitPerMin < 0:
		return fmt.Errorf("%w: rate_limit_per_min must not be negative", ErrInvalidConfig)
	case c.IdempotencyTTLSec <= 0:
		return fmt.Errorf("%w: idempotency_ttl_sec must be positive", ErrInvalidConfig)
	case c.IdempotencyMaxKeys <= 0:
		return fmt.Errorf("%w: idempotency_max_keys must be positive", ErrInvalidConfig)
	case !metricName.MatchString(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace %q is not a metric name", ErrInvalidConfig, c.MetricsNamespace)
	case !metricName.MatchString(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_subsystem %q is not a metric name", ErrInvalidConfig, c.MetricsSubsystem)
	case !validBuckets(c.MetricsLatencyBucketsMS):
		return fmt.Errorf("%w: metrics_latency_buckets_ms must be positive and ascending", ErrInvalidConfig)
	}
	return nil
}

// validBuckets accepts an empty list or strictly ascending positive bounds.
func validBuckets(b []float64) bool {
	prev := 0.0
	for _, v := range b {
		if v <= prev {
			return false
		}
		prev = v
	}
	return true
}

// Debounce returns the persistence debounce window.
func (c *Config) Debounce() time.Duration { return time.Duration(c.DebounceMS) * time.Millisecond }

// DelayedSurveyAfter returns the dropoff-to-delayed-survey delay.
func (c *Config) DelayedSurveyAfter() time.Duration {
	return time.Duration(c.DelayedSurveyMinutes) * time.Minute
}

// SurveyGrace returns how long a due delayed survey stays open.
func (c *Config) SurveyGrace() time.Duration { return time.Duration(c.SurveyGraceMinutes) * time.Minute }

// ReminderInterval returns the reminder sweep period.
func (c *Config) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalSec) * time.Second
}

// RemoteTimeout returns the per-call remote timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}
