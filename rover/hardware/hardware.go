// Package hardware adapts the rover's ev3dev devices into the narrow
// capability interfaces the drive logic consumes. Every implementation in
// this package talks to real sysfs/evdev nodes; use the rover simulator for
// development off the brick.
package hardware

import (
	"time"
)

// Drivetrain is a differential drive wheel pair addressed as a single unit.
// Speeds are tacho counts per second; power fractions are scaled against
// MaxSpeed by the caller.
type Drivetrain interface {
	// MaxSpeed reports the rated tacho speed of the slowest wheel motor.
	MaxSpeed() int
	// SetWheelPower stages per wheel speed setpoints for the next run.
	SetWheelPower(left, right int) error
	// RunContinuous drives with the staged setpoints until stopped.
	RunContinuous() error
	// RunTimed drives with the staged setpoints for d, then applies the
	// armed stop action.
	RunTimed(d time.Duration) error
	// BrakeStop arms the brake stop action and halts both wheels.
	BrakeStop() error
	// CoastStop arms the coast stop action and lets the wheels roll free.
	CoastStop() error
	// WaitMotionStart blocks until a wheel reports motion. A zero timeout
	// waits forever. Reports false if the timeout passed without motion.
	WaitMotionStart(timeout time.Duration) bool
	// WaitMotionStop blocks until both wheels report standstill. A zero
	// timeout waits forever. Reports false if the timeout passed first.
	WaitMotionStop(timeout time.Duration) bool
}

// Rangefinder reports the distance to the nearest obstacle ahead.
type Rangefinder interface {
	DistanceCm() (float64, error)
}

// Touch is a bump sensor.
type Touch interface {
	Pressed() (bool, error)
}

// ButtonPad reports the names of the brick buttons currently held down.
type ButtonPad interface {
	Pressed() ([]string, error)
}

// Indicator announces evade maneuvers to bystanders. Implementations treat
// device failures as non fatal.
type Indicator interface {
	EvadeStart()
	EvadeEnd()
}
