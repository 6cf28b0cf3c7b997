// Package link opens and writes the serial line between the host and one arm.
package link

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

var (
	// ErrPortOpen matches every failure to open or configure a port.
	ErrPortOpen = errors.New("port open failed")
	// ErrWriteTimeout is returned when a write does not finish in time. It is retryable.
	ErrWriteTimeout = errors.New("write timed out")
)

// Drivers.
const (
	DriverSerial = "serial" // go.bug.st/serial
	DriverTarm   = "tarm"   // github.com/tarm/serial
)

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a port for a configuration. Channels take one so tests can inject fakes.
type Opener func(cfg Config) (Port, error)

// Config holds serial line configuration.
type Config struct {
	Device         string `json:"device"`
	Baud           int    `json:"baud"`
	ReadTimeoutMs  int    `json:"read_timeout_ms"`
	WriteTimeoutMs int    `json:"write_timeout_ms"`
	Driver         string `json:"driver,omitempty"`
}

// DefaultConfig returns the firmware's line settings: 9600 8N1, 50ms reads, 100ms writes.
func DefaultConfig(device string) Config {
	return Config{
		Device:         device,
		Baud:           9600,
		ReadTimeoutMs:  50,
		WriteTimeoutMs: 100,
		Driver:         DriverSerial,
	}
}

// ReadTimeout returns the read timeout as a duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration.
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// OpenError reports a port that could not be opened or configured.
type OpenError struct {
	Device string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open serial port %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPortOpen) true.
func (e *OpenError) Is(target error) bool {
	return target == ErrPortOpen
}

// Open opens the configured device with the configured driver and bounds its writes
// by the write timeout.
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, &OpenError{Device: cfg.Device, Err: errors.New("no device configured")}
	}

	var (
		port Port
		err  error
	)
	switch cfg.Driver {
	case "", DriverSerial:
		port, err = openSerial(cfg)
	case DriverTarm:
		port, err = openTarm(cfg)
	default:
		err = errors.Errorf("unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Err: err}
	}

	return WithWriteTimeout(port, cfg.WriteTimeout()), nil
}

func openSerial(cfg Config) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	if cfg.ReadTimeoutMs > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout()); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "set read timeout")
		}
	}

	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}
