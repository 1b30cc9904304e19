package rover

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrBadMode = errors.New("bad drive mode")
)

// DriveMode selects the direction of travel for manual driving.
type DriveMode string

const (
	Stopped  DriveMode = "stopped"
	Forward  DriveMode = "forward"
	Backward DriveMode = "backward"
)

// ParseDriveMode maps wire values onto a DriveMode. "stop" is accepted as an
// alias for "stopped" since that is what the remotes send.
func ParseDriveMode(s string) (m DriveMode, err error) {
	switch s {
	case "stop", "stopped":
		m = Stopped
	case "forward":
		m = Forward
	case "backward", "reverse":
		m = Backward
	default:
		err = fmt.Errorf("%v: '%s'", ErrBadMode, s)
	}
	return
}

func (m DriveMode) Valid() bool {
	switch m {
	case Stopped, Forward, Backward:
		return true
	}
	return false
}

// DriveCommand is the normalized manual driving state. Speed is a percentage
// of the drivetrain's rated speed; TurnBias runs from -100 (hard left) to
// +100 (hard right) with 0 meaning straight ahead.
type DriveCommand struct {
	Mode     DriveMode `json:"mode"`
	Speed    int       `json:"speed"`
	TurnBias int       `json:"turnBias"`
}

// Clamped returns a copy with Speed forced into [0,100] and TurnBias into
// [-100,100]. Out of range values saturate rather than error.
func (c DriveCommand) Clamped() DriveCommand {
	c.Speed = clampInt(c.Speed, 0, 100)
	c.TurnBias = clampInt(c.TurnBias, -100, 100)
	return c
}

// WheelPower holds per-wheel power fractions in [-1,1] where 1 is full rated
// speed forwards. Always derived from a DriveCommand, never stored.
type WheelPower struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Setpoints scales the fractions to tacho speed setpoints for a drivetrain
// with the given rated speed.
func (wp WheelPower) Setpoints(maxSpeed int) (left, right int) {
	left = int(math.Round(wp.Left * float64(maxSpeed)))
	right = int(math.Round(wp.Right * float64(maxSpeed)))
	return
}

// ComputeWheelPower mixes a drive command into per-wheel power fractions.
// The inner wheel of a turn is attenuated by 1-|bias|/100, so at full bias
// the inner wheel holds still while the outer carries on at the commanded
// speed. Stopped yields {0,0} regardless of the other fields.
func ComputeWheelPower(cmd DriveCommand) (wp WheelPower) {
	cmd = cmd.Clamped()

	if cmd.Mode == Stopped {
		return
	}

	base := float64(cmd.Speed) / 100.0
	if cmd.Mode == Backward {
		base = -base
	}

	atten := 1.0 - float64(absInt(cmd.TurnBias))/100.0

	wp.Left = base
	wp.Right = base
	switch {
	case cmd.TurnBias > 0:
		wp.Right = base * atten
	case cmd.TurnBias < 0:
		wp.Left = base * atten
	}

	return
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
