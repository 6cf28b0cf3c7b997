//go:build tinygo && arduino

package main

import (
	"machine"

	"github.com/kxrobot/kxr/pkg/stepper"
)

func profile() stepper.Config { return stepper.CNCShield() }

var boardPins = gpio{
	2: machine.D2, 3: machine.D3, 4: machine.D4,
	5: machine.D5, 6: machine.D6, 7: machine.D7,
	8: machine.D8,
}
