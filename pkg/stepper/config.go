// Package stepper turns joint angle deltas into step and direction pulses.
//
// Pins and delays are injected so the same executor runs on the microcontroller
// and in tests.
package stepper

import (
	"fmt"
	"time"
)

// Pin is a GPIO pin number.
type Pin uint8

// NoPin marks an unused pin.
const NoPin Pin = 0xff

// Axis identifies a driven joint.
type Axis int

const (
	X Axis = iota // base
	Y             // shoulder
	Z             // elbow
)

// NumAxes is the number of driven axes.
const NumAxes = 3

func (a Axis) String() string {
	switch a {
	case X:
		return "X"
	case Y:
		return "Y"
	case Z:
		return "Z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Valid reports whether a names a driven axis.
func (a Axis) Valid() bool {
	return a >= X && a < NumAxes
}

// AxisConfig describes the driver and gearing of one axis.
type AxisConfig struct {
	StepPin        Pin
	DirPin         Pin
	EnablePin      Pin
	DegreesPerStep float64 // motor full step
	GearRatio      float64 // motor turns per joint turn
	Microsteps     int     // 1 for full stepping
	InvertDir      bool
}

// Timing is the pulse profile of a driver.
type Timing struct {
	PulseWidth time.Duration // step held high
	StepDelay  time.Duration // low time before the next pulse, zero for none
}

// Config holds the executor configuration.
type Config struct {
	Axes            [NumAxes]AxisConfig
	Timing          Timing
	EnableActiveLow bool
	MaxSteps        int // per Execute call, zero for no limit
}

// CNCShield is an Arduino CNC shield with A4988 drivers at full step behind 1:36 gearboxes.
func CNCShield() Config {
	axis := func(step, dir Pin) AxisConfig {
		return AxisConfig{
			StepPin:        step,
			DirPin:         dir,
			EnablePin:      8,
			DegreesPerStep: 1.8,
			GearRatio:      36,
			Microsteps:     1,
		}
	}
	return Config{
		Axes:            [NumAxes]AxisConfig{axis(2, 5), axis(3, 6), axis(4, 7)},
		Timing:          Timing{PulseWidth: 27 * time.Microsecond, StepDelay: time.Millisecond},
		EnableActiveLow: true,
		MaxSteps:        36 * 200, // one joint revolution
	}
}

// RAMPS is a RAMPS 1.4 board with A4988 drivers at 1/16 microstepping behind 1:36 gearboxes.
func RAMPS() Config {
	axis := func(step, dir, en Pin) AxisConfig {
		return AxisConfig{
			StepPin:        step,
			DirPin:         dir,
			EnablePin:      en,
			DegreesPerStep: 1.8,
			GearRatio:      36,
			Microsteps:     16,
		}
	}
	return Config{
		Axes:            [NumAxes]AxisConfig{axis(54, 55, 38), axis(60, 61, 56), axis(46, 48, 62)},
		Timing:          Timing{PulseWidth: 70 * time.Microsecond},
		EnableActiveLow: true,
		MaxSteps:        36 * 200 * 16,
	}
}

// Validate checks the gearing of every axis.
func (c Config) Validate() error {
	for i, a := range c.Axes {
		if a.DegreesPerStep <= 0 || a.GearRatio <= 0 || a.Microsteps <= 0 {
			return fmt.Errorf("axis %s: step angle, gear ratio and microsteps must be positive", Axis(i))
		}
		if a.StepPin == NoPin || a.DirPin == NoPin {
			return fmt.Errorf("axis %s: step and direction pins are required", Axis(i))
		}
	}
	if c.Timing.PulseWidth <= 0 {
		return fmt.Errorf("pulse width must be positive")
	}
	return nil
}
