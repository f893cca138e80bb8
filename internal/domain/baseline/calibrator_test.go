package baseline_test

import (
	"testing"
	"time"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/baseline"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalibrator(t *testing.T) {
	Convey("Given a calibrator with the default window", t, func() {
		c := baseline.NewCalibrator()

		Convey("Then it is idle and uncalculated", func() {
			So(c.Window(), ShouldEqual, 30*time.Second)
			So(c.IsCalculated(), ShouldBeFalse)
		})

		Convey("When sampled before being started", func() {
			b := c.Sample(160)

			Convey("Then nothing is captured", func() {
				So(b.Calculated, ShouldBeFalse)
				So(c.IsCalculated(), ShouldBeFalse)
			})
		})

		Convey("When started at t=5000", func() {
			c.Start(5000)

			Convey("Then the sample is due 30s later", func() {
				So(c.DueAt(), ShouldEqual, 35_000)
			})

			Convey("And sampled once", func() {
				b := c.Sample(158)

				Convey("Then the baseline is frozen", func() {
					So(b, ShouldResemble, baseline.Baseline{Value: 158, Calculated: true})
					So(c.IsCalculated(), ShouldBeTrue)
					So(b.Usable(), ShouldBeTrue)
				})

				Convey("Then a second sample is a no-op", func() {
					again := c.Sample(171)
					So(again.Value, ShouldEqual, 158)
				})
			})

			Convey("And sampled while the runner is standing still", func() {
				b := c.Sample(0)

				Convey("Then the baseline is calculated but not usable", func() {
					So(b.Calculated, ShouldBeTrue)
					So(b.Usable(), ShouldBeFalse)
				})
			})

			Convey("And reset before the window elapses", func() {
				c.Reset()

				Convey("Then a late sample cannot capture a baseline", func() {
					So(c.Sample(160).Calculated, ShouldBeFalse)
					So(c.IsCalculated(), ShouldBeFalse)
				})
			})
		})

		Convey("When configured with a custom window", func() {
			c := baseline.NewCalibrator(baseline.WithWindow(10 * time.Second))
			c.Start(0)
			So(c.DueAt(), ShouldEqual, 10_000)
		})
	})
}
