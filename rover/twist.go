package rover

import (
	"github.com/go-gl/mathgl/mgl64"
	. "math"
)

// Twist is the instantaneous chassis velocity commanded by a pair of wheel
// speeds. Forwards is positive linear, counter clockwise is positive angular.
type Twist struct {
	Linear  float64 `json:"linear"`  // m/s
	Angular float64 `json:"angular"` // rad/s
}

// Chassis describes the differential drive geometry in meters.
type Chassis struct {
	WheelRadius float64
	Track       float64 // distance between the wheel contact points
}

// forward builds the wheel space to body space velocity map.
func (c Chassis) forward() mgl64.Mat2 {
	r := c.WheelRadius
	w := c.Track
	// column major
	return mgl64.Mat2{r / 2, -r / w, r / 2, r / w}
}

// Twist converts wheel angular velocities in rad/s into a body twist.
func (c Chassis) Twist(left, right float64) Twist {
	v := c.forward().Mul2x1(mgl64.Vec2{left, right})
	return Twist{Linear: v.X(), Angular: v.Y()}
}

// Wheels is the inverse of Twist, yielding the wheel angular velocities that
// produce t.
func (c Chassis) Wheels(t Twist) (left, right float64) {
	v := c.forward().Inv().Mul2x1(mgl64.Vec2{t.Linear, t.Angular})
	return v.X(), v.Y()
}

// PowerTwist reports the twist commanded by wheel power fractions on a
// drivetrain rated at maxSpeed tacho counts per second. EV3 tacho motors
// count 360 per rotation so a count per second is a degree per second.
func (c Chassis) PowerTwist(wp WheelPower, maxSpeed int) Twist {
	scale := float64(maxSpeed) * Pi / 180.0
	return c.Twist(wp.Left*scale, wp.Right*scale)
}
