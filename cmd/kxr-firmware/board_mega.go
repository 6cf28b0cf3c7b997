//go:build tinygo && arduino_mega2560

package main

import (
	"machine"

	"github.com/kxrobot/kxr/pkg/stepper"
)

func profile() stepper.Config { return stepper.RAMPS() }

// RAMPS 1.4 uses the analog header for the X and Y drivers.
var boardPins = gpio{
	54: machine.A0, 55: machine.A1, 38: machine.D38,
	60: machine.A6, 61: machine.A7, 56: machine.A2,
	46: machine.D46, 48: machine.D48, 62: machine.A8,
}
