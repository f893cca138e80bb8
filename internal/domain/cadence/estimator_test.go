package cadence_test

import (
	"testing"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/cadence"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEstimator(t *testing.T) {
	Convey("Given an estimator reset at t=0", t, func() {
		e := cadence.NewEstimator()
		e.Reset(0)

		Convey("When nothing has happened yet", func() {
			Convey("Then cadence is zero", func() {
				So(e.CurrentCadence(0), ShouldEqual, 0)
				So(e.Smoothed(), ShouldEqual, 0)
			})
		})

		Convey("When the first step arrives 400ms after reset", func() {
			accepted := e.OnStep(400)

			Convey("Then the estimate equals the instantaneous rate exactly", func() {
				So(accepted, ShouldBeTrue)
				So(e.Smoothed(), ShouldEqual, 150.0)
				So(e.CurrentCadence(400), ShouldEqual, 150)
				So(e.LastStepTime(), ShouldEqual, 400)
			})

			Convey("And a second step follows 700ms later", func() {
				e.OnStep(1100)

				Convey("Then the estimate follows the 0.6/0.4 recurrence", func() {
					So(e.Smoothed(), ShouldAlmostEqual, 0.6*150+0.4*(60000.0/700), 1e-9)
					So(e.CurrentCadence(1100), ShouldEqual, 124)
				})
			})

			Convey("And a chatter step arrives 150ms later", func() {
				accepted := e.OnStep(550)

				Convey("Then it is ignored", func() {
					So(accepted, ShouldBeFalse)
					So(e.Smoothed(), ShouldEqual, 150.0)
					So(e.LastStepTime(), ShouldEqual, 400)
				})
			})

			Convey("And a step arrives exactly 200ms later", func() {
				So(e.OnStep(600), ShouldBeTrue)
				So(e.Smoothed(), ShouldAlmostEqual, 0.6*150+0.4*300, 1e-9)
			})

			Convey("And a step carries an earlier timestamp", func() {
				So(e.OnStep(100), ShouldBeFalse)
				So(e.LastStepTime(), ShouldEqual, 400)
				So(e.Smoothed(), ShouldEqual, 150.0)
			})
		})

		Convey("When steps are steady at 375ms", func() {
			var ts int64
			for i := 0; i < 40; i++ {
				ts += 375
				e.OnStep(ts)
			}

			Convey("Then the estimate converges on 160 spm", func() {
				So(e.CurrentCadence(ts), ShouldEqual, 160)
			})

			Convey("Then staleness is measured from the last accepted step", func() {
				So(e.CurrentCadence(ts+2500), ShouldEqual, 160)
				So(e.CurrentCadence(ts+2501), ShouldEqual, 0)
			})
		})

		Convey("When the estimator is reset mid-session", func() {
			e.OnStep(400)
			e.OnStep(800)
			e.Reset(10_000)

			Convey("Then the estimate is cleared and the next step primes it again", func() {
				So(e.Smoothed(), ShouldEqual, 0)
				So(e.LastStepTime(), ShouldEqual, 10_000)
				So(e.OnStep(10_500), ShouldBeTrue)
				So(e.Smoothed(), ShouldEqual, 120.0)
			})
		})
	})
}
