package hardware

import (
	"fmt"
	"time"

	"github.com/ev3go/ev3dev"
)

// TankDrive drives a pair of tacho motors as one differential drive unit.
// The left motor is the reference for motion start waits; stop waits cover
// both wheels.
type TankDrive struct {
	left  *ev3dev.TachoMotor
	right *ev3dev.TachoMotor

	maxSpeed int
}

// NewTankDrive locates the two wheel motors and prepares them for driving.
// The kernel release gate runs first so a stale ev3dev image is reported
// before any sysfs attribute goes missing.
func NewTankDrive(leftPort, rightPort, driver string) (t *TankDrive, err error) {
	if err = CheckRelease(); err != nil {
		return
	}

	left, err := ev3dev.TachoMotorFor(leftPort, driver)
	if err != nil {
		return nil, fmt.Errorf("unable to find left motor on %s: %v", leftPort, err)
	}

	right, err := ev3dev.TachoMotorFor(rightPort, driver)
	if err != nil {
		return nil, fmt.Errorf("unable to find right motor on %s: %v", rightPort, err)
	}

	t = &TankDrive{
		left:  left,
		right: right,
	}

	// pair the wheels on the weaker rating should the motors ever differ
	t.maxSpeed = left.MaxSpeed()
	if r := right.MaxSpeed(); r < t.maxSpeed {
		t.maxSpeed = r
	}
	for _, m := range t.motors() {
		if err = m.Err(); err != nil {
			return nil, fmt.Errorf("unable to read motor rating: %v", err)
		}
	}

	err = t.BrakeStop()
	return
}

func (t *TankDrive) motors() [2]*ev3dev.TachoMotor {
	return [2]*ev3dev.TachoMotor{t.left, t.right}
}

func (t *TankDrive) MaxSpeed() int {
	return t.maxSpeed
}

func (t *TankDrive) SetWheelPower(left, right int) (err error) {
	if err = t.left.SetSpeedSetpoint(left).Err(); err != nil {
		return fmt.Errorf("unable to set left wheel speed: %v", err)
	}
	if err = t.right.SetSpeedSetpoint(right).Err(); err != nil {
		return fmt.Errorf("unable to set right wheel speed: %v", err)
	}
	return
}

func (t *TankDrive) RunContinuous() (err error) {
	for _, m := range t.motors() {
		if err = m.Command("run-forever").Err(); err != nil {
			return fmt.Errorf("unable to run wheels: %v", err)
		}
	}
	return
}

func (t *TankDrive) RunTimed(d time.Duration) (err error) {
	for _, m := range t.motors() {
		if err = m.SetTimeSetpoint(d).Command("run-timed").Err(); err != nil {
			return fmt.Errorf("unable to run wheels for %v: %v", d, err)
		}
	}
	return
}

func (t *TankDrive) BrakeStop() (err error) {
	return t.halt("brake")
}

func (t *TankDrive) CoastStop() (err error) {
	return t.halt("coast")
}

// halt arms the given stop action and issues a stop. The armed action also
// applies when a later timed run expires.
func (t *TankDrive) halt(action string) (err error) {
	for _, m := range t.motors() {
		if err = m.SetStopAction(action).Command("stop").Err(); err != nil {
			return fmt.Errorf("unable to %s stop wheels: %v", action, err)
		}
	}
	return
}

func (t *TankDrive) WaitMotionStart(timeout time.Duration) bool {
	_, ok, err := ev3dev.Wait(t.left, ev3dev.Running, ev3dev.Running, 0, false, waitTimeout(timeout))
	return err == nil && ok
}

func (t *TankDrive) WaitMotionStop(timeout time.Duration) bool {
	start := time.Now()
	for _, m := range t.motors() {
		remaining := waitTimeout(timeout)
		if timeout > 0 {
			remaining = timeout - time.Since(start)
			if remaining <= 0 {
				return false
			}
		}
		_, ok, err := ev3dev.Wait(m, ev3dev.Running, 0, 0, false, remaining)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// waitTimeout maps our zero value onto the negative duration ev3dev.Wait
// takes for an unbounded wait.
func waitTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return -1
	}
	return timeout
}
