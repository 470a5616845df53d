package features_test

import (
	"math"
	"testing"

	"github.com/okian/offerwise/internal/domain/features"
	"github.com/okian/offerwise/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtractor_Extract(t *testing.T) {
	Convey("Given a default extractor", t, func() {
		ex := features.NewExtractor()

		Convey("When extracting a typical downtown order", func() {
			v := ex.Extract(&model.Order{
				NumberOfStops:    1,
				ShownPayout:      20,
				Miles:            5,
				EstimatedMinutes: 40,
				PickupZone:       "Downtown",
				LocalTime:        "12:15",
				DayOfWeek:        "Saturday",
				Weather:          "Rainy",
			})

			Convey("Then raw economics are computed", func() {
				So(v.HourlyRate, ShouldEqual, 30.0)
				So(v.DollarsPerMile, ShouldEqual, 4.0)
				So(v.TimePerStop, ShouldEqual, 40.0)
			})

			Convey("And normalised features are clamped against their ceilings", func() {
				So(v.HourlyRateNorm, ShouldAlmostEqual, 0.6, 1e-9)
				So(v.MilesEfficiency, ShouldAlmostEqual, 0.8, 1e-9)
				So(v.StopsBonus, ShouldAlmostEqual, 0.1, 1e-9)
			})

			Convey("And multipliers reflect time, day, zone and weather", func() {
				So(v.TimeOfDay, ShouldEqual, 1.2)
				So(v.DayOfWeek, ShouldEqual, 1.15)
				So(v.PickupZoneScore, ShouldEqual, 1.15)
				So(v.Weather, ShouldEqual, 0.75)
			})

			Convey("And absent ratings sit at the neutral midpoint", func() {
				So(v.Parking, ShouldEqual, 2.0)
				So(v.RouteCohesion, ShouldEqual, 3.0)
			})
		})

		Convey("When ratings are present", func() {
			v := ex.Extract(&model.Order{
				NumberOfStops: 2,
				Ratings: model.Ratings{
					ParkingDifficulty: model.IntPtr(1),
					EndZoneQuality:    model.IntPtr(3),
					RouteCohesion:     model.IntPtr(5),
				},
			})

			Convey("Then they are inverted", func() {
				So(v.Parking, ShouldEqual, 3.0)
				So(v.EndZone, ShouldEqual, 1.0)
				So(v.RouteCohesion, ShouldEqual, 1.0)
			})
		})

		Convey("When numeric inputs are zero, negative or non-finite", func() {
			inputs := []*model.Order{
				nil,
				{},
				{ShownPayout: -5, Miles: -1, EstimatedMinutes: -10, NumberOfStops: -3},
				{ShownPayout: math.NaN(), Miles: math.Inf(1), EstimatedMinutes: math.NaN()},
				{ShownPayout: math.Inf(1), Miles: 0, EstimatedMinutes: 0},
			}

			Convey("Then every vector field stays finite", func() {
				for _, in := range inputs {
					v := ex.Extract(in)
					for _, f := range v.Named() {
						So(math.IsNaN(f) || math.IsInf(f, 0), ShouldBeFalse)
					}
					So(math.IsNaN(v.HourlyRate), ShouldBeFalse)
					So(math.IsNaN(v.DollarsPerMile), ShouldBeFalse)
					So(math.IsNaN(v.TimePerStop), ShouldBeFalse)
				}
			})
		})

		Convey("When stops exceed ten", func() {
			v := ex.Extract(&model.Order{NumberOfStops: 14})
			So(v.StopsBonus, ShouldEqual, 1.0)
		})
	})

	Convey("Given custom popular zones", t, func() {
		ex := features.NewExtractor(features.WithPopularZones([]string{" Harbor "}))

		Convey("Then only the configured zones are boosted", func() {
			So(ex.ZoneScore("Old Harbor Market"), ShouldEqual, 1.15)
			So(ex.ZoneScore("Downtown"), ShouldEqual, 1.0)
		})
	})
}

func TestTimeOfDayScore(t *testing.T) {
	Convey("Given local times across the day", t, func() {
		cases := map[string]float64{
			"11:00": 1.2,
			"13:59": 1.2,
			"17:30": 1.2,
			"19:45": 1.2,
			"10:30": 1.0,
			"14:00": 1.0,
			"16:10": 1.0,
			"20:05": 1.0,
			"03:00": 0.8,
			"22:00": 0.8,
			"9:15":  0.8,
			"":      1.0,
			"ab:cd": 1.0,
			"99:00": 1.0,
		}
		for in, want := range cases {
			So(features.TimeOfDayScore(in), ShouldEqual, want)
		}
	})
}

func TestDayAndWeather(t *testing.T) {
	Convey("Given day names", t, func() {
		So(features.DayOfWeekScore("SUNDAY"), ShouldEqual, 1.15)
		So(features.DayOfWeekScore("friday"), ShouldEqual, 1.05)
		So(features.DayOfWeekScore("Tuesday"), ShouldEqual, 1.0)
		So(features.DayOfWeekScore("Fri"), ShouldEqual, 1.0)
	})

	Convey("Given weather labels", t, func() {
		So(features.WeatherScore("sunny"), ShouldEqual, 1.0)
		So(features.WeatherScore("Cloudy"), ShouldEqual, 0.9)
		So(features.WeatherScore("snowy"), ShouldEqual, 0.6)
		So(features.WeatherScore(""), ShouldEqual, 1.0)
		So(features.WeatherScore("hail"), ShouldEqual, 1.0)
	})
}
