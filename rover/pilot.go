package rover

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/karlmdavis/gorover/rover/hardware"
)

// Stock tuning for the avoidance controller. A config file can override any
// of these through DriveConfig.
const (
	POLL_INTERVAL    = time.Second
	STOP_DISTANCE_CM = 15.0
	SLOW_DISTANCE_CM = 40.0
	BACKUP_SPEED     = -500
	BACKUP_TIME      = 1500 * time.Millisecond
	PIVOT_SPEED      = 750
	PIVOT_TIME_MIN   = 250 * time.Millisecond
	PIVOT_TIME_MAX   = 750 * time.Millisecond

	NUDGE_TIME       = time.Second
	NUDGE_PIVOT_TIME = 150 * time.Millisecond
)

var (
	ErrBusy       = errors.New("autopilot is driving")
	ErrNotDriving = errors.New("autopilot is not driving")
)

// ProximityReading is one fresh sample of the forward looking sensors.
// Readings are never cached between controller iterations.
type ProximityReading struct {
	DistanceCm float64
	Touching   bool
}

// AvoidanceState labels what the autopilot is doing right now. It only has
// meaning while a run is active and resets to cruising when one starts.
type AvoidanceState string

const (
	StateCruising AvoidanceState = "cruising"
	StateEvading  AvoidanceState = "evading"
	StateStopped  AvoidanceState = "stopped"
)

// Rover is the control surface the transports drive: the REST handlers, the
// websocket conductor and the dev shell all speak to one of these.
type Rover interface {
	Apply(cmd DriveCommand) error
	SetMode(m DriveMode) error
	SetSpeed(speed int) error
	SetTurnBias(bias int) error
	Nudge(mode DriveMode) error
	Pivot(direction string) error
	StartAuto() error
	StopAuto() error
	AutoActive() bool
	Command() DriveCommand
	Status() PilotStatus
}

// PilotStatus is a snapshot of everything the telemetry stream reports.
type PilotStatus struct {
	Command    DriveCommand   `json:"command"`
	Power      WheelPower     `json:"power"`
	Twist      Twist          `json:"twist"`
	Auto       bool           `json:"auto"`
	AutoState  AvoidanceState `json:"autoState"`
	DistanceCm float64        `json:"distanceCm"`
}

type autoRun struct {
	interrupt chan struct{}
	stop      sync.Once
	done      chan struct{}
	err       error
}

func (r *autoRun) requestStop() {
	r.stop.Do(func() { close(r.interrupt) })
}

// Pilot owns the drivetrain. All manual command application runs under one
// lock, and an active autonomous run excludes manual driving entirely.
type Pilot struct {
	drive hardware.Drivetrain
	rf    hardware.Rangefinder
	touch hardware.Touch
	ind   hardware.Indicator

	chassis Chassis
	cfg     DriveConfig
	rand    *rand.Rand

	lock      sync.Mutex
	cmd       DriveCommand
	run       *autoRun
	autoState AvoidanceState
	lastDist  float64
}

func NewPilot(drive hardware.Drivetrain, rf hardware.Rangefinder, touch hardware.Touch, ind hardware.Indicator, config *RoverConfig) (p *Pilot) {
	p = &Pilot{
		drive:   drive,
		rf:      rf,
		touch:   touch,
		ind:     ind,
		chassis: config.Chassis.Chassis(),
		cfg:     config.Drive.withDefaults(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cmd:     DriveCommand{Mode: Stopped},
	}
	return
}

// New builds a pilot and, when button watching is enabled, the brick pad,
// wiring either real EV3 devices or the simulator depending on the config
// version.
func New(config *RoverConfig) (pilot *Pilot, pad hardware.ButtonPad, err error) {
	switch config.Version {
	case VersionSimulated:
		sim := NewSimulatedRover(config)
		return NewPilot(sim, sim, sim, sim, config), sim.Pad(), nil

	case VersionEV3:
		var tank *hardware.TankDrive
		if tank, err = hardware.NewTankDrive(config.Motors.Left, config.Motors.Right, config.Motors.Driver); err != nil {
			return
		}

		var us *hardware.UltrasonicSensor
		if us, err = hardware.NewUltrasonicSensor(config.Sensors.Ultrasonic.Port, config.Sensors.Ultrasonic.Driver); err != nil {
			return
		}

		var touch *hardware.TouchSensor
		if touch, err = hardware.NewTouchSensor(config.Sensors.Touch.Port, config.Sensors.Touch.Driver); err != nil {
			return
		}

		var ind hardware.Indicator
		if ei, ierr := hardware.NewEvadeIndicator(config.Buttons.Sound); ierr != nil {
			// feedback is a nicety, drive silent rather than refuse
			log.Printf("unable to open evade indicator: %v", ierr)
		} else {
			ind = ei
		}

		if config.Buttons.Watch {
			var bp *hardware.BrickPad
			if bp, err = hardware.NewBrickPad(config.Buttons.Device); err != nil {
				return
			}
			pad = bp
		}

		pilot = NewPilot(tank, us, touch, ind, config)
		return

	default:
		err = fmt.Errorf("unable to work with version %d", config.Version)
		return
	}
}

// Seed reseeds the maneuver randomness. Handy for reproducing a pivot
// sequence; tests lean on it.
func (p *Pilot) Seed(seed int64) {
	p.rand = rand.New(rand.NewSource(seed))
}

// Apply replaces the manual driving state wholesale and drives the wheels to
// match. Returns ErrBusy while the autopilot owns the drivetrain.
func (p *Pilot) Apply(cmd DriveCommand) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.applyLocked(cmd)
}

func (p *Pilot) SetMode(m DriveMode) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	cmd := p.cmd
	cmd.Mode = m
	return p.applyLocked(cmd)
}

func (p *Pilot) SetSpeed(speed int) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	cmd := p.cmd
	cmd.Speed = speed
	return p.applyLocked(cmd)
}

func (p *Pilot) SetTurnBias(bias int) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	cmd := p.cmd
	cmd.TurnBias = bias
	return p.applyLocked(cmd)
}

func (p *Pilot) applyLocked(cmd DriveCommand) (err error) {
	if p.run != nil {
		return ErrBusy
	}
	if !cmd.Mode.Valid() {
		return fmt.Errorf("%v: '%s'", ErrBadMode, cmd.Mode)
	}
	cmd = cmd.Clamped()

	// flipping between forward and backward shocks the gear train unless
	// the wheels come to rest first
	if reverses(p.cmd.Mode, cmd.Mode) {
		if err = p.drive.BrakeStop(); err != nil {
			return
		}
		p.drive.WaitMotionStop(0)
	}

	if cmd.Mode == Stopped {
		if err = p.drive.BrakeStop(); err != nil {
			return
		}
	} else {
		left, right := ComputeWheelPower(cmd).Setpoints(p.drive.MaxSpeed())
		if err = p.drive.SetWheelPower(left, right); err != nil {
			return
		}
		if err = p.drive.RunContinuous(); err != nil {
			return
		}
	}

	p.cmd = cmd
	return
}

func reverses(old, next DriveMode) bool {
	return (old == Forward && next == Backward) || (old == Backward && next == Forward)
}

// Nudge runs both wheels at full power for a second and lets the rover
// coast out. The lock is held for the whole motion so nudges cannot stack.
func (p *Pilot) Nudge(mode DriveMode) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.run != nil {
		return ErrBusy
	}

	var dir int
	switch mode {
	case Forward:
		dir = 1
	case Backward:
		dir = -1
	default:
		return fmt.Errorf("%v: cannot nudge '%s'", ErrBadMode, mode)
	}

	max := p.drive.MaxSpeed()
	if err = p.drive.CoastStop(); err != nil {
		return
	}
	if err = p.drive.SetWheelPower(dir*max, dir*max); err != nil {
		return
	}
	if err = p.drive.RunTimed(NUDGE_TIME); err != nil {
		return
	}
	p.drive.WaitMotionStart(0)
	p.drive.WaitMotionStop(0)

	p.cmd = DriveCommand{Mode: Stopped}
	return
}

// Pivot spins the rover in place for a bump of rotation, left or right.
func (p *Pilot) Pivot(direction string) (err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.run != nil {
		return ErrBusy
	}

	speed := p.cfg.PivotSpeed
	switch direction {
	case "left":
		speed = -speed
	case "right":
	default:
		return fmt.Errorf("unable to pivot '%s': want left or right", direction)
	}

	if err = p.drive.CoastStop(); err != nil {
		return
	}
	if err = p.drive.SetWheelPower(speed, -speed); err != nil {
		return
	}
	if err = p.drive.RunTimed(NUDGE_PIVOT_TIME); err != nil {
		return
	}
	p.drive.WaitMotionStart(0)
	p.drive.WaitMotionStop(0)

	p.cmd = DriveCommand{Mode: Stopped}
	return
}

// Command reports the current manual driving state.
func (p *Pilot) Command() DriveCommand {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.cmd
}

// Status snapshots the pilot for telemetry.
func (p *Pilot) Status() (s PilotStatus) {
	p.lock.Lock()
	defer p.lock.Unlock()

	s.Command = p.cmd
	s.Power = ComputeWheelPower(p.cmd)
	s.Twist = p.chassis.PowerTwist(s.Power, p.drive.MaxSpeed())
	s.Auto = p.run != nil
	s.AutoState = p.autoState
	s.DistanceCm = p.lastDist
	return
}

func (p *Pilot) AutoActive() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.run != nil
}

// claimAuto takes exclusive ownership of the drivetrain for an autonomous
// run. Only one run can exist at a time.
func (p *Pilot) claimAuto() (run *autoRun, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.run != nil {
		return nil, ErrBusy
	}

	run = &autoRun{
		interrupt: make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.run = run
	p.autoState = StateCruising
	return
}

func (p *Pilot) finishAuto(run *autoRun, err error) {
	p.lock.Lock()
	p.run = nil
	p.autoState = StateStopped
	p.lock.Unlock()

	run.err = err
	close(run.done)
}

// AutoDrive claims the drivetrain and runs the avoidance loop until the
// interrupt channel closes, blocking the caller for the whole run. A nil
// channel drives until a device fails.
func (p *Pilot) AutoDrive(interrupt <-chan struct{}) (err error) {
	run, err := p.claimAuto()
	if err != nil {
		return
	}

	if interrupt != nil {
		go func() {
			select {
			case <-interrupt:
				run.requestStop()
			case <-run.done:
			}
		}()
	}

	err = p.autoLoop(run.interrupt)
	p.finishAuto(run, err)
	return
}

// StartAuto launches an autonomous run in the background.
func (p *Pilot) StartAuto() (err error) {
	run, err := p.claimAuto()
	if err != nil {
		return
	}

	go func() {
		err := p.autoLoop(run.interrupt)
		if err != nil {
			log.Printf("autopilot run failed: %v", err)
		}
		p.finishAuto(run, err)
	}()
	return
}

// StopAuto asks the active run to wind down and blocks until its wheels
// have confirmed standstill, returning whatever ended the run.
func (p *Pilot) StopAuto() (err error) {
	p.lock.Lock()
	run := p.run
	p.lock.Unlock()

	if run == nil {
		return ErrNotDriving
	}

	run.requestStop()
	<-run.done
	return run.err
}

// autoLoop is the avoidance controller. Each iteration takes one fresh
// proximity sample and either evades or cruises on it; the interrupt is
// honored between iterations so an in flight maneuver always completes.
// Whatever path exits the loop, the drivetrain is left braked and settled.
func (p *Pilot) autoLoop(interrupt <-chan struct{}) (err error) {
	defer func() {
		if serr := p.settle(); serr != nil && err == nil {
			err = serr
		}
	}()

	for {
		select {
		case <-interrupt:
			return
		default:
		}

		var reading ProximityReading
		if reading, err = p.sample(); err != nil {
			return
		}

		// keep evading on fresh samples until the way ahead reads clear;
		// the interrupt is honored between maneuvers, never inside one
		for reading.Touching || reading.DistanceCm < p.cfg.StopDistanceCm {
			p.setAutoState(StateEvading)
			if err = p.evade(); err != nil {
				return
			}

			select {
			case <-interrupt:
				return
			default:
			}

			if reading, err = p.sample(); err != nil {
				return
			}
		}

		p.setAutoState(StateCruising)
		if err = p.cruise(reading.DistanceCm); err != nil {
			return
		}

		time.Sleep(time.Duration(p.cfg.PollInterval))
	}
}

// sample reads both proximity sensors fresh. Any read failure aborts the
// run; a controller that cannot see must not keep driving.
func (p *Pilot) sample() (r ProximityReading, err error) {
	if r.Touching, err = p.touch.Pressed(); err != nil {
		err = fmt.Errorf("unable to read bumper: %v", err)
		return
	}
	if r.DistanceCm, err = p.rf.DistanceCm(); err != nil {
		err = fmt.Errorf("unable to read rangefinder: %v", err)
		return
	}

	p.lock.Lock()
	p.lastDist = r.DistanceCm
	p.lock.Unlock()
	return
}

// cruise drives straight ahead with the power fraction the distance law
// dictates.
func (p *Pilot) cruise(distanceCm float64) (err error) {
	duty := CruiseDuty(distanceCm, p.cfg.StopDistanceCm, p.cfg.SlowDistanceCm)
	speed := int(math.Round(duty * float64(p.drive.MaxSpeed())))

	if err = p.drive.SetWheelPower(speed, speed); err != nil {
		return
	}
	return p.drive.RunContinuous()
}

// CruiseDuty maps obstacle distance onto a forward power fraction: zero at
// the stop threshold, full from the slow threshold outward, linear between.
func CruiseDuty(distanceCm, stopCm, slowCm float64) float64 {
	if distanceCm > slowCm {
		distanceCm = slowCm
	}
	duty := (distanceCm - stopCm) / (slowCm - stopCm)
	if duty < 0 {
		return 0
	}
	if duty > 1 {
		return 1
	}
	return duty
}

// evade backs the rover away from whatever it is about to hit, pivots a
// random amount toward open space and sets off again. The warning indicator
// brackets the whole maneuver.
func (p *Pilot) evade() (err error) {
	if err = p.settle(); err != nil {
		return
	}

	if p.ind != nil {
		p.ind.EvadeStart()
		defer p.ind.EvadeEnd()
	}

	if err = p.backup(); err != nil {
		return
	}
	if err = p.pivot(); err != nil {
		return
	}
	return p.resume()
}

// resume drives straight ahead at full power. The next sample's cruise law
// trims that back down if the pivot did not open enough room.
func (p *Pilot) resume() (err error) {
	max := p.drive.MaxSpeed()
	if err = p.drive.SetWheelPower(max, max); err != nil {
		return
	}
	return p.drive.RunContinuous()
}

// settle brakes both wheels and waits for true standstill.
func (p *Pilot) settle() (err error) {
	if err = p.drive.BrakeStop(); err != nil {
		return fmt.Errorf("unable to stop: %v", err)
	}
	p.drive.WaitMotionStop(0)
	return
}

func (p *Pilot) backup() (err error) {
	if err = p.drive.SetWheelPower(p.cfg.BackupSpeed, p.cfg.BackupSpeed); err != nil {
		return
	}
	if err = p.drive.RunTimed(time.Duration(p.cfg.BackupTime)); err != nil {
		return
	}
	p.drive.WaitMotionStart(0)
	p.drive.WaitMotionStop(0)
	return
}

func (p *Pilot) pivot() (err error) {
	speed := p.cfg.PivotSpeed
	if p.rand.Intn(2) == 0 {
		speed = -speed
	}

	if err = p.drive.SetWheelPower(speed, -speed); err != nil {
		return
	}
	if err = p.drive.RunTimed(p.pivotTime()); err != nil {
		return
	}
	p.drive.WaitMotionStart(0)
	p.drive.WaitMotionStop(0)
	return
}

// pivotTime picks a pivot duration uniformly across the configured bounds,
// both ends included.
func (p *Pilot) pivotTime() time.Duration {
	min := time.Duration(p.cfg.PivotTimeMin)
	max := time.Duration(p.cfg.PivotTimeMax)
	return min + time.Duration(p.rand.Int63n(int64(max-min)+1))
}

func (p *Pilot) setAutoState(s AvoidanceState) {
	p.lock.Lock()
	p.autoState = s
	p.lock.Unlock()
}
