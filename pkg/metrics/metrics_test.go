package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// read returns the current value of a single counter or gauge.
func read(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the offerwise namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "offerwise")
				So(manager.subsystem, ShouldEqual, "driver")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.transitions.WithLabelValues("accepted").Inc()

			Convey("Then metric names and constant labels follow the options", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() != "test_unit_workflow_transitions_total" {
						continue
					}
					found = true
					labels := f.GetMetric()[0].GetLabel()
					var env string
					for _, l := range labels {
						if l.GetName() == "env" {
							env = l.GetValue()
						}
					}
					So(env, ShouldEqual, "test")
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "offerwise")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording scoring metrics", func() {
			before := read(globalManager.offersScored.WithLabelValues("heuristic", "take"))
			RecordOfferScored("heuristic", "take", 8.0)

			Convey("Then the counter moves", func() {
				So(read(globalManager.offersScored.WithLabelValues("heuristic", "take")), ShouldEqual, before+1)
			})
		})

		Convey("When recording workflow metrics", func() {
			before := read(globalManager.transitions.WithLabelValues("picked_up"))
			RecordTransition("picked_up")
			UpdateImmediateSurveyQueue(3)
			UpdatePendingReminders(2)

			Convey("Then counters and gauges reflect the calls", func() {
				So(read(globalManager.transitions.WithLabelValues("picked_up")), ShouldEqual, before+1)
				So(read(globalManager.immediateSurveyQueue), ShouldEqual, 3.0)
				So(read(globalManager.pendingReminders), ShouldEqual, 2.0)
			})

			Convey("And reminder outcomes are counted by kind", func() {
				So(func() {
					RecordReminderFired("order")
					RecordReminderExpired("session")
				}, ShouldNotPanic)
			})
		})

		Convey("When recording session and training metrics", func() {
			UpdateSessionTotals(2, 45, 2)
			RecordTraining(12, 87.5)

			Convey("Then the gauges hold the latest values", func() {
				So(read(globalManager.sessionEarnings), ShouldEqual, 45.0)
				So(read(globalManager.sessionHours), ShouldEqual, 2.0)
				So(read(globalManager.trainingAccuracy), ShouldEqual, 87.5)
				So(read(globalManager.trainingPoints), ShouldEqual, 12.0)
			})
		})

		Convey("When recording persistence metrics", func() {
			before := read(globalManager.persistFlushedKeys)
			UpdatePendingWrites(4)
			RecordPersistCoalesced()
			RecordPersistFlush(4, 1.5)

			Convey("Then flushed keys accumulate", func() {
				So(read(globalManager.pendingWrites), ShouldEqual, 4.0)
				So(read(globalManager.persistFlushedKeys), ShouldEqual, before+4)
			})
		})

		Convey("When recording history, remote and HTTP metrics", func() {
			So(func() {
				UpdateHistoryOrders(10)
				RecordRepositoryLatency("save_order", 0.4)
				RecordRemoteSync("orders", "ok")
				RecordHTTPRequest("/v1/score", "POST", "200")
				RecordHTTPRequestDuration("/v1/score", "POST", "200", 3)
			}, ShouldNotPanic)
		})

		Convey("When recording error and system metrics", func() {
			So(func() {
				RecordErrorByComponent("lifecycle", "invalid_transition")
				RecordErrorByType("timeout", "warning")
				RecordErrorByEndpoint("/v1/offers", "POST", "conflict")
				RecordErrorLatency("api", "conflict", 2)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordTransition("offered")
		families, err := GetRegistry().Gather()

		Convey("Then it exposes offerwise metrics only", func() {
			So(err, ShouldBeNil)
			So(families, ShouldNotBeEmpty)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "offerwise_"), ShouldBeTrue)
			}
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given a namespace and driver label from startup config", t, func() {
		previous := GetRegistry()
		Init(WithNamespace("fleet"), WithSubsystem("courier"), WithCustomLabels(map[string]string{"user_id": "d-7"}))
		defer Init()

		Convey("Then the served registry is replaced", func() {
			So(GetRegistry(), ShouldNotEqual, previous)
		})

		Convey("Then recorded metrics carry the new prefix and label", func() {
			UpdatePendingReminders(4)
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)

			var found bool
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "fleet_courier_"), ShouldBeTrue)
				if f.GetName() != "fleet_courier_pending_reminders" {
					continue
				}
				found = true
				m := f.GetMetric()[0]
				So(m.GetGauge().GetValue(), ShouldEqual, 4.0)
				So(m.GetLabel()[0].GetName(), ShouldEqual, "user_id")
				So(m.GetLabel()[0].GetValue(), ShouldEqual, "d-7")
			}
			So(found, ShouldBeTrue)
		})
	})
}
