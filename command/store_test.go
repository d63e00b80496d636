package command

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestColorCycle(t *testing.T) {
	Convey("Given the color cycle", t, func() {
		Convey("Eight advances return to the starting color", func() {
			for start := Green; start < ColorCount; start++ {
				c := start
				for i := 0; i < int(ColorCount); i++ {
					c = c.Next()
				}
				So(c, ShouldEqual, start)
			}
		})

		Convey("Pink wraps to Green", func() {
			So(Pink.Next(), ShouldEqual, Green)
		})

		Convey("An unknown color restarts the cycle", func() {
			So(Color(42).Next(), ShouldEqual, Green)
			So(Color(42).String(), ShouldEqual, "???")
		})

		Convey("Cyan is named CYAN", func() {
			So(Cyan.String(), ShouldEqual, "CYAN")
		})
	})
}

func TestStore(t *testing.T) {
	Convey("Given a new store", t, func() {
		s := NewStore()

		Convey("Nothing is dirty", func() {
			_, ok := s.TakeSpeed()
			So(ok, ShouldBeFalse)
			_, ok = s.TakeColor()
			So(ok, ShouldBeFalse)
			_, ok = s.TakeSound()
			So(ok, ShouldBeFalse)
			So(s.Color(), ShouldEqual, Green)
		})

		Convey("Setting the same speed twice re-arms the flag", func() {
			s.SetSpeed(5)
			v, ok := s.TakeSpeed()
			So(v, ShouldEqual, 5)
			So(ok, ShouldBeTrue)

			_, ok = s.TakeSpeed()
			So(ok, ShouldBeFalse)

			s.SetSpeed(5)
			v, ok = s.TakeSpeed()
			So(v, ShouldEqual, 5)
			So(ok, ShouldBeTrue)
		})

		Convey("Speed is clamped", func() {
			s.SetSpeed(-128)
			So(s.Speed(), ShouldEqual, SpeedMin)
			s.SetSpeed(127)
			So(s.Speed(), ShouldEqual, SpeedMax)
		})

		Convey("CycleColor advances and marks dirty", func() {
			So(s.CycleColor(), ShouldEqual, Red)
			c, ok := s.TakeColor()
			So(c, ShouldEqual, Red)
			So(ok, ShouldBeTrue)
		})

		Convey("A later sound overwrites an unconsumed one", func() {
			s.TriggerSound(SoundHorn)
			s.TriggerSound(SoundDepart)
			snd, ok := s.TakeSound()
			So(snd, ShouldEqual, SoundDepart)
			So(ok, ShouldBeTrue)
			So(s.Sound(), ShouldEqual, SoundNone)

			_, ok = s.TakeSound()
			So(ok, ShouldBeFalse)
		})

		Convey("Taking a dirty SoundNone clears the flag without a sound", func() {
			s.TriggerSound(SoundNone)
			So(s.Snapshot().SoundDirty, ShouldBeTrue)
			_, ok := s.TakeSound()
			So(ok, ShouldBeFalse)
			So(s.Snapshot().SoundDirty, ShouldBeFalse)
		})
	})
}
