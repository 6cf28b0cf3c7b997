package stepper

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrStepRange is returned for a move whose step count cannot be issued.
var ErrStepRange = errors.New("step count out of range")

// PinDriver drives digital outputs.
type PinDriver interface {
	ConfigureOutput(pin Pin) error
	SetPin(pin Pin, high bool) error
}

// Delayer blocks the caller for a duration. Pulse timing busy-waits on it; a
// timer-driven executor would be needed to serve anything else while pulsing.
type Delayer interface {
	Sleep(d time.Duration)
}

// DelayFunc adapts a function to Delayer.
type DelayFunc func(time.Duration)

func (f DelayFunc) Sleep(d time.Duration) { f(d) }

// AxisState is the motion state of one axis.
type AxisState int

const (
	Idle AxisState = iota
	Pulsing
)

// StepCount converts an angle in degrees to a whole number of driver steps.
func StepCount(angle float64, a AxisConfig) int {
	return int(steps(angle, a))
}

func steps(angle float64, a AxisConfig) float64 {
	return math.Abs(angle) / a.DegreesPerStep * a.GearRatio * float64(a.Microsteps)
}

// Executor pulses one axis at a time. Execute blocks until every pulse is out.
type Executor struct {
	cfg     Config
	pins    PinDriver
	delay   Delayer
	states  [NumAxes]AxisState
	enabled bool
}

// New configures every pin as an output and leaves the drivers enabled.
func New(cfg Config, pins PinDriver, delay Delayer) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{cfg: cfg, pins: pins, delay: delay}
	for _, a := range cfg.Axes {
		for _, p := range []Pin{a.StepPin, a.DirPin, a.EnablePin} {
			if p == NoPin {
				continue
			}
			if err := pins.ConfigureOutput(p); err != nil {
				return nil, fmt.Errorf("configure pin %d: %w", p, err)
			}
		}
	}
	if err := e.EnableAll(); err != nil {
		return nil, err
	}
	return e, nil
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// State returns the motion state of an axis.
func (e *Executor) State(axis Axis) AxisState {
	if !axis.Valid() {
		return Idle
	}
	return e.states[axis]
}

// Enabled reports whether the drivers are enabled.
func (e *Executor) Enabled() bool {
	return e.enabled
}

// EnableAll enables every axis driver.
func (e *Executor) EnableAll() error {
	if err := e.setEnable(true); err != nil {
		return err
	}
	e.enabled = true
	return nil
}

// DisableAll disables every axis driver.
func (e *Executor) DisableAll() error {
	if err := e.setEnable(false); err != nil {
		return err
	}
	e.enabled = false
	return nil
}

func (e *Executor) setEnable(on bool) error {
	level := on
	if e.cfg.EnableActiveLow {
		level = !on
	}
	done := map[Pin]bool{}
	for _, a := range e.cfg.Axes {
		if a.EnablePin == NoPin || done[a.EnablePin] {
			continue
		}
		if err := e.pins.SetPin(a.EnablePin, level); err != nil {
			return fmt.Errorf("enable pin %d: %w", a.EnablePin, err)
		}
		done[a.EnablePin] = true
	}
	return nil
}

// Execute rotates axis by angle degrees and returns the number of steps issued.
// Positive angles drive the direction pin high.
func (e *Executor) Execute(axis Axis, angle float64) (int, error) {
	if !axis.Valid() {
		return 0, fmt.Errorf("unknown axis %d", int(axis))
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, fmt.Errorf("%w: angle %v on %s", ErrStepRange, angle, axis)
	}

	a := e.cfg.Axes[axis]
	s := steps(angle, a)
	if s >= float64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %.3g steps on %s", ErrStepRange, s, axis)
	}
	n := int(s)
	if e.cfg.MaxSteps > 0 && n > e.cfg.MaxSteps {
		return 0, fmt.Errorf("%w: %d steps on %s, limit %d", ErrStepRange, n, axis, e.cfg.MaxSteps)
	}
	if n == 0 {
		return 0, nil
	}

	forward := angle > 0
	if a.InvertDir {
		forward = !forward
	}
	if err := e.pins.SetPin(a.DirPin, forward); err != nil {
		return 0, fmt.Errorf("direction pin %d: %w", a.DirPin, err)
	}

	e.states[axis] = Pulsing
	defer func() { e.states[axis] = Idle }()

	t := e.cfg.Timing
	for i := 0; i < n; i++ {
		if err := e.pins.SetPin(a.StepPin, true); err != nil {
			return i, fmt.Errorf("step pin %d: %w", a.StepPin, err)
		}
		e.delay.Sleep(t.PulseWidth)
		if err := e.pins.SetPin(a.StepPin, false); err != nil {
			return i, fmt.Errorf("step pin %d: %w", a.StepPin, err)
		}
		if t.StepDelay > 0 {
			e.delay.Sleep(t.StepDelay)
		}
	}
	return n, nil
}
