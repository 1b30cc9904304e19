package hardware

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ev3go/ev3dev"
)

const usDistanceMode = "US-DIST-CM"

// UltrasonicSensor reads the EV3 ultrasonic rangefinder in continuous
// centimeter mode.
type UltrasonicSensor struct {
	s     *ev3dev.Sensor
	scale float64
}

func NewUltrasonicSensor(port, driver string) (u *UltrasonicSensor, err error) {
	s, err := ev3dev.SensorFor(port, driver)
	if err != nil {
		return nil, fmt.Errorf("unable to find ultrasonic sensor on %s: %v", port, err)
	}

	if err = s.SetMode(usDistanceMode).Err(); err != nil {
		return nil, fmt.Errorf("unable to set ultrasonic mode: %v", err)
	}

	// raw values carry a fixed decimal shift, 2550 reads as 255.0cm
	dec := s.Decimals()

	u = &UltrasonicSensor{
		s:     s,
		scale: math.Pow(10, -float64(dec)),
	}
	return
}

func (u *UltrasonicSensor) DistanceCm() (cm float64, err error) {
	raw, err := u.s.Value(0)
	if err != nil {
		return 0, fmt.Errorf("unable to read distance: %v", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse distance '%s': %v", raw, err)
	}

	return v * u.scale, nil
}

// TouchSensor reads the EV3 touch sensor as a bumper.
type TouchSensor struct {
	s *ev3dev.Sensor
}

func NewTouchSensor(port, driver string) (t *TouchSensor, err error) {
	s, err := ev3dev.SensorFor(port, driver)
	if err != nil {
		return nil, fmt.Errorf("unable to find touch sensor on %s: %v", port, err)
	}

	t = &TouchSensor{s: s}
	return
}

func (t *TouchSensor) Pressed() (pressed bool, err error) {
	raw, err := t.s.Value(0)
	if err != nil {
		return false, fmt.Errorf("unable to read touch sensor: %v", err)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("unable to parse touch state '%s': %v", raw, err)
	}

	return v != 0, nil
}
