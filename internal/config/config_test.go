package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/offerwise/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.TakeThreshold, convey.ShouldEqual, 7.5)
			convey.So(cfg.QuickDeclineThreshold, convey.ShouldEqual, 2)
			convey.So(cfg.TrainPriorBlend, convey.ShouldEqual, 0.5)
			convey.So(cfg.PopularZones, convey.ShouldContain, "downtown")
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "offerwise")
			convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "driver")
			convey.So(cfg.MetricsLatencyBucketsMS, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then durations are derived from the numeric fields", func() {
			convey.So(cfg.Debounce(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.DelayedSurveyAfter(), convey.ShouldEqual, 2*time.Hour)
			convey.So(cfg.SurveyGrace(), convey.ShouldEqual, 2*time.Hour)
			convey.So(cfg.ReminderInterval(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.RemoteTimeout(), convey.ShouldEqual, 10*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid values", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = " " },
			"empty data dir":        func(c *config.Config) { c.DataDir = "" },
			"unknown format":        func(c *config.Config) { c.LogFormat = "xml" },
			"negative debounce":     func(c *config.Config) { c.DebounceMS = -1 },
			"zero delay":            func(c *config.Config) { c.DelayedSurveyMinutes = 0 },
			"zero grace":            func(c *config.Config) { c.SurveyGraceMinutes = 0 },
			"zero interval":         func(c *config.Config) { c.ReminderIntervalSec = 0 },
			"take above 10":         func(c *config.Config) { c.TakeThreshold = 11 },
			"quick above 4":         func(c *config.Config) { c.QuickDeclineThreshold = 5 },
			"blend above 1":         func(c *config.Config) { c.TrainPriorBlend = 1.5 },
			"zero remote timeout":   func(c *config.Config) { c.RemoteTimeoutMS = 0 },
			"negative retries":      func(c *config.Config) { c.RemoteMaxRetries = -1 },
			"negative rate limit":   func(c *config.Config) { c.RateLimitPerMin = -1 },
			"zero idempotency ttl":  func(c *config.Config) { c.IdempotencyTTLSec = 0 },
			"zero idempotency keys": func(c *config.Config) { c.IdempotencyMaxKeys = 0 },
			"dashed namespace":      func(c *config.Config) { c.MetricsNamespace = "offer-wise" },
			"empty subsystem":       func(c *config.Config) { c.MetricsSubsystem = "" },
			"unsorted buckets":      func(c *config.Config) { c.MetricsLatencyBucketsMS = []float64{10, 5} },
			"repeated bucket":       func(c *config.Config) { c.MetricsLatencyBucketsMS = []float64{5, 5} },
			"zero bucket":           func(c *config.Config) { c.MetricsLatencyBucketsMS = []float64{0, 5} },
		}
		for name, mutate := range cases {
			cfg := config.New(context.Background())
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			_ = name
		}
	})
}
