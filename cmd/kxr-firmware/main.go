//go:build tinygo

// Command kxr-firmware runs on the arm's microcontroller. It reads move and
// driver commands from the serial port, solves move targets into joint angles
// and pulses the stepper drivers.
//
//	tinygo flash -target arduino ./cmd/kxr-firmware
//	tinygo flash -target arduino-mega2560 ./cmd/kxr-firmware
package main

import (
	"machine"
	"time"

	"github.com/kxrobot/kxr/pkg/firmware"
	"github.com/kxrobot/kxr/pkg/stepper"
)

const baudRate = 9600

// gpio drives the board pins named by the stepper profile.
type gpio map[stepper.Pin]machine.Pin

func (g gpio) ConfigureOutput(p stepper.Pin) error {
	pin, ok := g[p]
	if !ok {
		return errUnmappedPin
	}
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return nil
}

func (g gpio) SetPin(p stepper.Pin, high bool) error {
	pin, ok := g[p]
	if !ok {
		return errUnmappedPin
	}
	pin.Set(high)
	return nil
}

type pinError string

func (e pinError) Error() string { return string(e) }

const errUnmappedPin = pinError("pin not mapped on this board")

// uart adapts the byte oriented serial port to io.ReadWriter. Read polls until
// at least one byte is buffered.
type uart struct {
	s machine.Serialer
}

func (u uart) Read(b []byte) (int, error) {
	for u.s.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
	n := 0
	for n < len(b) && u.s.Buffered() > 0 {
		c, err := u.s.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

func (u uart) Write(b []byte) (int, error) {
	return u.s.Write(b)
}

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: baudRate})
	port := uart{s: machine.Serial}

	exec, err := stepper.New(profile(), boardPins, stepper.DelayFunc(time.Sleep))
	if err != nil {
		halt(port, err)
	}
	m, err := firmware.New(firmware.DefaultConfig(), exec)
	if err != nil {
		halt(port, err)
	}
	port.Write([]byte("ready\r\n"))
	for {
		if err := m.Serve(port); err != nil {
			port.Write([]byte("error: " + err.Error() + "\r\n"))
		}
	}
}

// halt reports a startup failure forever.
func halt(port uart, err error) {
	for {
		port.Write([]byte("error: " + err.Error() + "\r\n"))
		time.Sleep(time.Second)
	}
}
