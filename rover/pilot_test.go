package rover

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type MockDrivetrain struct {
	ops    []string
	sets   [][2]int
	timed  []time.Duration
	failOn string
}

func (m *MockDrivetrain) op(name string) error {
	m.ops = append(m.ops, name)
	if m.failOn == name {
		return errors.New(name + " exploded")
	}
	return nil
}

func (m *MockDrivetrain) MaxSpeed() int { return 900 }

func (m *MockDrivetrain) SetWheelPower(left, right int) error {
	m.sets = append(m.sets, [2]int{left, right})
	return m.op("set")
}

func (m *MockDrivetrain) RunContinuous() error { return m.op("run") }

func (m *MockDrivetrain) RunTimed(d time.Duration) error {
	m.timed = append(m.timed, d)
	return m.op("timed")
}

func (m *MockDrivetrain) BrakeStop() error { return m.op("brake") }
func (m *MockDrivetrain) CoastStop() error { return m.op("coast") }

func (m *MockDrivetrain) WaitMotionStart(timeout time.Duration) bool {
	m.op("waitstart")
	return true
}

func (m *MockDrivetrain) WaitMotionStop(timeout time.Duration) bool {
	m.op("waitstop")
	return true
}

// ScriptedRangefinder hands out the scripted distances in order, repeating
// the last one once the script runs dry. onLast fires as the final value is
// read, which scenarios use to close their interrupt channel.
type ScriptedRangefinder struct {
	script []float64
	reads  int
	err    error
	onLast func()
}

func (r *ScriptedRangefinder) DistanceCm() (float64, error) {
	if r.reads >= len(r.script) {
		if r.err != nil {
			return 0, r.err
		}
		return r.script[len(r.script)-1], nil
	}

	v := r.script[r.reads]
	r.reads++
	if r.reads == len(r.script) && r.onLast != nil {
		r.onLast()
	}
	return v, nil
}

type MockTouch struct {
	script []bool
	reads  int
	err    error
}

func (t *MockTouch) Pressed() (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	if t.reads < len(t.script) {
		v := t.script[t.reads]
		t.reads++
		return v, nil
	}
	return false, nil
}

type MockIndicator struct {
	starts, ends int
}

func (i *MockIndicator) EvadeStart() { i.starts++ }
func (i *MockIndicator) EvadeEnd()   { i.ends++ }

func testPilot(drive *MockDrivetrain, rf *ScriptedRangefinder, touch *MockTouch, ind *MockIndicator) *Pilot {
	config := DefaultConfig()
	config.Drive.PollInterval = Duration(time.Millisecond)
	p := NewPilot(drive, rf, touch, ind, config)
	p.Seed(42)
	return p
}

// the drivetrain ops one evade maneuver produces
var evadeOps = []string{
	"brake", "waitstop", // settle first
	"set", "timed", "waitstart", "waitstop", // back away
	"set", "timed", "waitstart", "waitstop", // pivot
	"set", "run", // set off again at full power
}

func TestAutoDrive(t *testing.T) {
	Convey("a graduated approach cruises twice then keeps evading", t, func() {
		drive := &MockDrivetrain{}
		ind := &MockIndicator{}
		interrupt := make(chan struct{})
		rf := &ScriptedRangefinder{
			script: []float64{50, 30, 10, 5},
			onLast: func() { close(interrupt) },
		}
		p := testPilot(drive, rf, &MockTouch{}, ind)

		err := p.AutoDrive(interrupt)
		So(err, ShouldBeNil)

		want := []string{"set", "run", "set", "run"}
		want = append(want, evadeOps...)
		want = append(want, evadeOps...)
		want = append(want, "brake", "waitstop")
		So(drive.ops, ShouldResemble, want)

		Convey("cruise speeds follow the distance law", func() {
			So(drive.sets[0], ShouldResemble, [2]int{900, 900})
			So(drive.sets[1], ShouldResemble, [2]int{540, 540})
		})

		Convey("evades back away, pivot, then set off again", func() {
			So(drive.sets[2], ShouldResemble, [2]int{-500, -500})
			So(drive.timed[0], ShouldEqual, 1500*time.Millisecond)

			So(drive.sets[3][0], ShouldEqual, -drive.sets[3][1])
			So(drive.sets[3][0], ShouldBeIn, []int{750, -750})
			So(drive.timed[1], ShouldBeBetweenOrEqual, 250*time.Millisecond, 750*time.Millisecond)

			So(drive.sets[4], ShouldResemble, [2]int{900, 900})

			So(drive.sets[5], ShouldResemble, [2]int{-500, -500})
			So(drive.timed[2], ShouldEqual, 1500*time.Millisecond)
			So(drive.timed[3], ShouldBeBetweenOrEqual, 250*time.Millisecond, 750*time.Millisecond)
		})

		Convey("feedback brackets every evade", func() {
			So(ind.starts, ShouldEqual, 2)
			So(ind.ends, ShouldEqual, 2)
		})

		Convey("the run ends parked and idle", func() {
			So(p.AutoActive(), ShouldBeFalse)
			So(p.Status().AutoState, ShouldEqual, StateStopped)
		})
	})

	Convey("an interrupt finishes the iteration then parks", t, func() {
		drive := &MockDrivetrain{}
		interrupt := make(chan struct{})
		rf := &ScriptedRangefinder{
			script: []float64{50, 50},
			onLast: func() { close(interrupt) },
		}
		p := testPilot(drive, rf, &MockTouch{}, &MockIndicator{})

		err := p.AutoDrive(interrupt)
		So(err, ShouldBeNil)
		So(drive.ops, ShouldResemble, []string{
			"set", "run",
			"set", "run",
			"brake", "waitstop",
		})
		So(p.AutoActive(), ShouldBeFalse)
	})

	Convey("the stop distance itself still counts as clear", t, func() {
		drive := &MockDrivetrain{}
		ind := &MockIndicator{}
		interrupt := make(chan struct{})
		rf := &ScriptedRangefinder{
			script: []float64{15.0},
			onLast: func() { close(interrupt) },
		}
		p := testPilot(drive, rf, &MockTouch{}, ind)

		err := p.AutoDrive(interrupt)
		So(err, ShouldBeNil)
		So(ind.starts, ShouldEqual, 0)

		// the law yields zero duty there, so the rover creeps to a halt
		So(drive.sets[0], ShouldResemble, [2]int{0, 0})
		So(drive.ops, ShouldResemble, []string{"set", "run", "brake", "waitstop"})
	})

	Convey("a hair inside the stop distance evades", t, func() {
		drive := &MockDrivetrain{}
		ind := &MockIndicator{}
		interrupt := make(chan struct{})
		rf := &ScriptedRangefinder{
			script: []float64{14.999},
			onLast: func() { close(interrupt) },
		}
		p := testPilot(drive, rf, &MockTouch{}, ind)

		err := p.AutoDrive(interrupt)
		So(err, ShouldBeNil)
		So(ind.starts, ShouldEqual, 1)
	})

	Convey("a pressed bumper forces an evade whatever the range", t, func() {
		drive := &MockDrivetrain{}
		ind := &MockIndicator{}
		interrupt := make(chan struct{})
		rf := &ScriptedRangefinder{
			script: []float64{100},
			onLast: func() { close(interrupt) },
		}
		p := testPilot(drive, rf, &MockTouch{script: []bool{true}}, ind)

		err := p.AutoDrive(interrupt)
		So(err, ShouldBeNil)
		So(ind.starts, ShouldEqual, 1)

		want := append(append([]string{}, evadeOps...), "brake", "waitstop")
		So(drive.ops, ShouldResemble, want)
	})

	Convey("a dead rangefinder aborts the run but still parks", t, func() {
		drive := &MockDrivetrain{}
		rf := &ScriptedRangefinder{
			script: []float64{50},
			err:    errors.New("no echo"),
		}
		p := testPilot(drive, rf, &MockTouch{}, &MockIndicator{})

		err := p.AutoDrive(nil)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "unable to read rangefinder")

		last := drive.ops[len(drive.ops)-2:]
		So(last, ShouldResemble, []string{"brake", "waitstop"})
	})

	Convey("an actuator failure surfaces after the safety stop", t, func() {
		drive := &MockDrivetrain{failOn: "run"}
		rf := &ScriptedRangefinder{script: []float64{50}}
		p := testPilot(drive, rf, &MockTouch{}, &MockIndicator{})

		err := p.AutoDrive(nil)
		So(err, ShouldNotBeNil)
		So(drive.ops, ShouldResemble, []string{"set", "run", "brake", "waitstop"})
	})

	Convey("only one run owns the drivetrain", t, func() {
		drive := &MockDrivetrain{}
		rf := &ScriptedRangefinder{script: []float64{50}}
		p := testPilot(drive, rf, &MockTouch{}, &MockIndicator{})

		So(p.StartAuto(), ShouldBeNil)
		So(p.AutoActive(), ShouldBeTrue)

		Convey("a second start is refused", func() {
			So(p.StartAuto(), ShouldEqual, ErrBusy)
		})

		Convey("manual driving is refused", func() {
			So(p.Apply(DriveCommand{Mode: Forward, Speed: 50}), ShouldEqual, ErrBusy)
			So(p.Nudge(Forward), ShouldEqual, ErrBusy)
			So(p.Pivot("left"), ShouldEqual, ErrBusy)
		})

		Reset(func() {
			So(p.StopAuto(), ShouldBeNil)
			So(p.AutoActive(), ShouldBeFalse)
			So(p.StopAuto(), ShouldEqual, ErrNotDriving)
		})
	})

	Convey("pivot durations stay inside the bounds, ends included", t, func() {
		p := testPilot(&MockDrivetrain{}, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		for i := 0; i < 200; i++ {
			So(p.pivotTime(), ShouldBeBetweenOrEqual, 250*time.Millisecond, 750*time.Millisecond)
		}

		p.cfg.PivotTimeMin = Duration(300 * time.Millisecond)
		p.cfg.PivotTimeMax = Duration(300 * time.Millisecond)
		So(p.pivotTime(), ShouldEqual, 300*time.Millisecond)
	})
}

func TestPilotManual(t *testing.T) {
	Convey("applying a command mixes and runs the wheels", t, func() {
		drive := &MockDrivetrain{}
		p := testPilot(drive, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		So(p.Apply(DriveCommand{Mode: Forward, Speed: 50}), ShouldBeNil)
		So(drive.ops, ShouldResemble, []string{"set", "run"})
		So(drive.sets[0], ShouldResemble, [2]int{450, 450})
		So(p.Command(), ShouldResemble, DriveCommand{Mode: Forward, Speed: 50})

		Convey("a turn bias attenuates one side", func() {
			So(p.SetTurnBias(50), ShouldBeNil)
			So(drive.sets[1], ShouldResemble, [2]int{450, 225})
			So(p.Command().Speed, ShouldEqual, 50)
		})

		Convey("patching the speed keeps the rest of the command", func() {
			So(p.SetSpeed(80), ShouldBeNil)
			So(drive.sets[1], ShouldResemble, [2]int{720, 720})
			So(p.Command().Mode, ShouldEqual, Forward)
		})

		Convey("flipping direction brakes to rest first", func() {
			So(p.SetMode(Backward), ShouldBeNil)
			So(drive.ops[2:], ShouldResemble, []string{"brake", "waitstop", "set", "run"})
			So(drive.sets[1], ShouldResemble, [2]int{-450, -450})
		})

		Convey("stopping brakes without staging speeds", func() {
			So(p.SetMode(Stopped), ShouldBeNil)
			So(drive.ops[2:], ShouldResemble, []string{"brake"})
			So(p.Command().Mode, ShouldEqual, Stopped)
		})
	})

	Convey("an unknown mode is rejected before the wheels move", t, func() {
		drive := &MockDrivetrain{}
		p := testPilot(drive, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		err := p.Apply(DriveCommand{Mode: "sideways", Speed: 50})
		So(err, ShouldNotBeNil)
		So(drive.ops, ShouldBeEmpty)
	})

	Convey("a nudge runs flat out for a second and coasts", t, func() {
		drive := &MockDrivetrain{}
		p := testPilot(drive, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		So(p.Nudge(Forward), ShouldBeNil)
		So(drive.ops, ShouldResemble, []string{"coast", "set", "timed", "waitstart", "waitstop"})
		So(drive.sets[0], ShouldResemble, [2]int{900, 900})
		So(drive.timed[0], ShouldEqual, time.Second)

		So(p.Nudge(Backward), ShouldBeNil)
		So(drive.sets[1], ShouldResemble, [2]int{-900, -900})

		So(p.Nudge(Stopped), ShouldNotBeNil)
	})

	Convey("a pivot bump spins the wheels against each other", t, func() {
		drive := &MockDrivetrain{}
		p := testPilot(drive, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		So(p.Pivot("left"), ShouldBeNil)
		So(drive.sets[0], ShouldResemble, [2]int{-750, 750})
		So(drive.timed[0], ShouldEqual, 150*time.Millisecond)

		So(p.Pivot("right"), ShouldBeNil)
		So(drive.sets[1], ShouldResemble, [2]int{750, -750})

		So(p.Pivot("up"), ShouldNotBeNil)
	})

	Convey("status snapshots the commanded motion", t, func() {
		drive := &MockDrivetrain{}
		p := testPilot(drive, &ScriptedRangefinder{script: []float64{50}}, &MockTouch{}, &MockIndicator{})

		So(p.Apply(DriveCommand{Mode: Forward, Speed: 50}), ShouldBeNil)
		s := p.Status()
		So(s.Power.Left, ShouldAlmostEqual, 0.5, kPowerTolerance)
		So(s.Power.Right, ShouldAlmostEqual, 0.5, kPowerTolerance)
		So(s.Twist.Linear, ShouldBeGreaterThan, 0)
		So(s.Twist.Angular, ShouldAlmostEqual, 0, kTwistTolerance)
		So(s.Auto, ShouldBeFalse)
	})
}
