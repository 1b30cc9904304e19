package rover

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/karlmdavis/gorover/rover/hardware"
)

// Simulated world tuning.
const (
	SIM_MAX_SPEED = 900
	SIM_INTERVAL  = time.Second / 10
	SIM_JITTER_CM = 0.5
	SIM_MAX_RANGE = 255.0
	SIM_TOUCH_CM  = 2.0

	// centimeters a wheel covers per tacho count on the stock 56mm tire
	simCmPerCount = 2 * math.Pi * 2.8 / 360
)

// SimulatedRover stands in for the whole device stack off the brick: the
// drivetrain, both proximity sensors, the indicator and the button pad,
// backed by a small random walk world where driving forward closes on the
// next obstacle and pivoting rerolls the heading.
type SimulatedRover struct {
	lock sync.Mutex

	left, right int
	running     bool
	runTimer    *time.Timer

	distance float64
	buttons  []string
}

func NewSimulatedRover(config *RoverConfig) (sim *SimulatedRover) {
	sim = new(SimulatedRover)
	sim.distance = SIM_MAX_RANGE
	go sim.update()
	return
}

func (s *SimulatedRover) update() {
	for {
		s.lock.Lock()
		if s.running {
			forward := float64(s.left+s.right) / 2.0 * simCmPerCount
			s.distance -= forward * SIM_INTERVAL.Seconds()

			if s.left*s.right < 0 {
				// pivoting in place, so the rangefinder sweeps onto a
				// different obstacle
				s.distance += (rand.Float64() - 0.3) * 30
			}
		}
		s.distance += (rand.Float64() - 0.5) * SIM_JITTER_CM
		if s.distance < 1 {
			s.distance = 1
		}
		if s.distance > SIM_MAX_RANGE {
			s.distance = SIM_MAX_RANGE
		}
		s.lock.Unlock()

		time.Sleep(SIM_INTERVAL)
	}
}

func (s *SimulatedRover) MaxSpeed() int {
	return SIM_MAX_SPEED
}

func (s *SimulatedRover) SetWheelPower(left, right int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.left, s.right = left, right
	return nil
}

func (s *SimulatedRover) RunContinuous() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelTimer()
	s.running = true
	return nil
}

func (s *SimulatedRover) RunTimed(d time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelTimer()
	s.running = true
	s.runTimer = time.AfterFunc(d, func() {
		s.lock.Lock()
		s.running = false
		s.lock.Unlock()
	})
	return nil
}

func (s *SimulatedRover) BrakeStop() error {
	return s.halt()
}

func (s *SimulatedRover) CoastStop() error {
	return s.halt()
}

func (s *SimulatedRover) halt() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelTimer()
	s.running = false
	return nil
}

func (s *SimulatedRover) cancelTimer() {
	if s.runTimer != nil {
		s.runTimer.Stop()
		s.runTimer = nil
	}
}

func (s *SimulatedRover) WaitMotionStart(timeout time.Duration) bool {
	return s.waitRunning(true, timeout)
}

func (s *SimulatedRover) WaitMotionStop(timeout time.Duration) bool {
	return s.waitRunning(false, timeout)
}

func (s *SimulatedRover) waitRunning(want bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.lock.Lock()
		ok := s.running == want
		s.lock.Unlock()
		if ok {
			return true
		}
		if timeout > 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *SimulatedRover) DistanceCm() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.distance, nil
}

func (s *SimulatedRover) Pressed() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.distance <= SIM_TOUCH_CM, nil
}

// Pad exposes the scripted button pad as its own value. Pressed on the
// rover itself belongs to the touch sensor.
func (s *SimulatedRover) Pad() hardware.ButtonPad {
	return simPad{s}
}

type simPad struct {
	s *SimulatedRover
}

func (p simPad) Pressed() ([]string, error) {
	p.s.lock.Lock()
	defer p.s.lock.Unlock()
	return append([]string(nil), p.s.buttons...), nil
}

// PressButtons scripts which pad buttons read as held down.
func (s *SimulatedRover) PressButtons(names ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.buttons = names
}

func (s *SimulatedRover) EvadeStart() {
	log.Print("sim: evade feedback on")
}

func (s *SimulatedRover) EvadeEnd() {
	log.Print("sim: evade feedback off")
}
