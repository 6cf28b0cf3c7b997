package link

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type bufferPort struct {
	bytes.Buffer
	closed bool
}

func (p *bufferPort) Close() error {
	p.closed = true
	return nil
}

type stuckPort struct {
	bufferPort
	release chan struct{}
}

func (p *stuckPort) Write(b []byte) (int, error) {
	<-p.release
	return len(b), nil
}

func TestWithWriteTimeout_Passthrough(t *testing.T) {
	p := &bufferPort{}
	if got := WithWriteTimeout(p, 0); got != Port(p) {
		t.Error("zero timeout should return the port unchanged")
	}

	timed := WithWriteTimeout(p, time.Second)
	n, err := timed.Write([]byte("M17\n"))
	if err != nil || n != 4 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if p.String() != "M17\n" {
		t.Errorf("port got %q", p.String())
	}

	if err := timed.Close(); err != nil || !p.closed {
		t.Errorf("Close did not reach the port: %v", err)
	}
}

func TestWithWriteTimeout_Stalled(t *testing.T) {
	p := &stuckPort{release: make(chan struct{})}
	timed := WithWriteTimeout(p, 20*time.Millisecond)

	start := time.Now()
	_, err := timed.Write([]byte("G1X0Y0Z0\n"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Write error = %v, want ErrWriteTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Write blocked for %s", elapsed)
	}

	// The first write is still on the line.
	if _, err := timed.Write([]byte("M18\n")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("second Write error = %v, want ErrWriteTimeout", err)
	}

	close(p.release)
	deadline := time.Now().Add(time.Second)
	for {
		_, err := timed.Write([]byte("M18\n"))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Write still failing after release: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []Config{
		{},
		{Device: "/dev/null", Driver: "carrier-pigeon"},
		{Device: "/dev/kxr-does-not-exist", Baud: 9600},
	}

	for _, cfg := range tests {
		p, err := Open(cfg)
		if !errors.Is(err, ErrPortOpen) {
			t.Errorf("Open(%+v) error = %v, want ErrPortOpen", cfg, err)
		}
		var oe *OpenError
		if !errors.As(err, &oe) || oe.Device != cfg.Device {
			t.Errorf("Open(%+v) error %v is not an OpenError for the device", cfg, err)
		}
		if p != nil {
			t.Errorf("Open(%+v) returned a port alongside the error", cfg)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Baud != 9600 || cfg.Driver != DriverSerial {
		t.Errorf("DefaultConfig = %+v", cfg)
	}
	if cfg.WriteTimeout() != 100*time.Millisecond || cfg.ReadTimeout() != 50*time.Millisecond {
		t.Errorf("timeouts = %s, %s", cfg.ReadTimeout(), cfg.WriteTimeout())
	}
}
