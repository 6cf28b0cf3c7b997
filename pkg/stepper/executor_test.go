package stepper

import (
	"errors"
	"math"
	"testing"
	"time"
)

type pinEvent struct {
	pin  Pin
	high bool
}

type recordingPins struct {
	outputs []Pin
	events  []pinEvent
	level   map[Pin]bool
	failOn  Pin
}

func newRecordingPins() *recordingPins {
	return &recordingPins{level: map[Pin]bool{}, failOn: NoPin}
}

func (r *recordingPins) ConfigureOutput(p Pin) error {
	r.outputs = append(r.outputs, p)
	return nil
}

func (r *recordingPins) SetPin(p Pin, high bool) error {
	if p == r.failOn {
		return errors.New("pin fault")
	}
	r.events = append(r.events, pinEvent{p, high})
	r.level[p] = high
	return nil
}

func (r *recordingPins) rising(p Pin) int {
	n := 0
	for _, e := range r.events {
		if e.pin == p && e.high {
			n++
		}
	}
	return n
}

type sleepTotal struct {
	total time.Duration
	calls int
}

func (s *sleepTotal) Sleep(d time.Duration) {
	s.total += d
	s.calls++
}

func newExecutor(t *testing.T, cfg Config) (*Executor, *recordingPins, *sleepTotal) {
	t.Helper()
	pins := newRecordingPins()
	delay := &sleepTotal{}
	e, err := New(cfg, pins, delay)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, pins, delay
}

func TestStepCount(t *testing.T) {
	cnc := CNCShield().Axes[X]
	ramps := RAMPS().Axes[X]

	tests := []struct {
		name  string
		angle float64
		axis  AxisConfig
		want  int
	}{
		{"one motor step of joint", 1.8, cnc, 36},
		{"negative uses magnitude", -1.8, cnc, 36},
		{"two steps", 3.6, cnc, 72},
		{"microstepping", 1.8, ramps, 576},
		{"zero", 0, cnc, 0},
		{"below one step truncates", 0.01, cnc, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StepCount(tt.angle, tt.axis); got != tt.want {
				t.Errorf("StepCount(%v) = %d, want %d", tt.angle, got, tt.want)
			}
		})
	}
}

func TestNew_ConfiguresPinsAndEnables(t *testing.T) {
	_, pins, _ := newExecutor(t, CNCShield())

	// 3 step, 3 dir, shared enable configured once per axis
	if len(pins.outputs) != 9 {
		t.Errorf("configured %d outputs, want 9", len(pins.outputs))
	}
	if high, ok := pins.level[8]; !ok || high {
		t.Errorf("enable pin 8 should be driven low after New")
	}
}

func TestExecute_Pulses(t *testing.T) {
	e, pins, delay := newExecutor(t, CNCShield())
	pins.events = nil

	n, err := e.Execute(Y, 1.8)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 36 {
		t.Fatalf("steps = %d, want 36", n)
	}
	if got := pins.rising(3); got != 36 {
		t.Errorf("pulses on Y step pin = %d, want 36", got)
	}
	if pins.rising(2) != 0 || pins.rising(4) != 0 {
		t.Error("other axes pulsed")
	}
	if !pins.level[6] {
		t.Error("positive angle should drive direction high")
	}
	if pins.level[3] {
		t.Error("step pin left high")
	}

	want := 36 * (27*time.Microsecond + time.Millisecond)
	if delay.total != want {
		t.Errorf("delay total = %v, want %v", delay.total, want)
	}
	if e.State(Y) != Idle {
		t.Error("axis should be idle after Execute")
	}
}

func TestExecute_Direction(t *testing.T) {
	cfg := CNCShield()
	cfg.Axes[Z].InvertDir = true
	e, pins, _ := newExecutor(t, cfg)

	if _, err := e.Execute(X, -1.8); err != nil {
		t.Fatal(err)
	}
	if pins.level[5] {
		t.Error("negative angle should drive direction low")
	}

	if _, err := e.Execute(Z, 1.8); err != nil {
		t.Fatal(err)
	}
	if pins.level[7] {
		t.Error("inverted axis should drive direction low for a positive angle")
	}
}

func TestExecute_NoPulseTiming(t *testing.T) {
	e, pins, delay := newExecutor(t, RAMPS())

	n, err := e.Execute(Z, 1.8)
	if err != nil {
		t.Fatal(err)
	}
	if n != 576 || pins.rising(46) != 576 {
		t.Errorf("steps = %d, pulses = %d, want 576", n, pins.rising(46))
	}
	if delay.calls != 576 {
		t.Errorf("sleep calls = %d, want one per pulse", delay.calls)
	}
}

func TestExecute_Errors(t *testing.T) {
	e, pins, _ := newExecutor(t, CNCShield())

	if _, err := e.Execute(Axis(5), 10); err == nil {
		t.Error("unknown axis should fail")
	}
	if _, err := e.Execute(X, math.NaN()); !errors.Is(err, ErrStepRange) {
		t.Errorf("NaN angle: got %v, want ErrStepRange", err)
	}
	if _, err := e.Execute(X, 720); !errors.Is(err, ErrStepRange) {
		t.Errorf("two revolutions: got %v, want ErrStepRange", err)
	}

	pins.events = nil
	if n, err := e.Execute(X, 0); err != nil || n != 0 {
		t.Errorf("zero angle: n=%d err=%v", n, err)
	}
	if len(pins.events) != 0 {
		t.Error("zero angle should not touch pins")
	}

	pins.failOn = 2
	if _, err := e.Execute(X, 1.8); err == nil {
		t.Error("pin fault should surface")
	}
	if e.State(X) != Idle {
		t.Error("axis should return to idle after a fault")
	}
}

func TestExecute_UnlimitedRejectsOverflow(t *testing.T) {
	cfg := CNCShield()
	cfg.MaxSteps = 0
	e, pins, _ := newExecutor(t, cfg)
	pins.events = nil

	for _, angle := range []float64{1e300, -1e20, math.MaxFloat64} {
		n, err := e.Execute(Y, angle)
		if !errors.Is(err, ErrStepRange) {
			t.Errorf("Execute(%g): got %v, want ErrStepRange", angle, err)
		}
		if n != 0 {
			t.Errorf("Execute(%g) = %d steps, want 0", angle, n)
		}
	}
	if len(pins.events) != 0 {
		t.Errorf("rejected moves touched pins: %v", pins.events)
	}

	if n, err := e.Execute(Y, 720); err != nil || n != 14400 {
		t.Errorf("two revolutions without a limit: n=%d err=%v", n, err)
	}
}

func TestEnableDisable(t *testing.T) {
	e, pins, _ := newExecutor(t, RAMPS())

	if err := e.DisableAll(); err != nil {
		t.Fatal(err)
	}
	if e.Enabled() {
		t.Error("Enabled after DisableAll")
	}
	for _, p := range []Pin{38, 56, 62} {
		if !pins.level[p] {
			t.Errorf("enable pin %d should be high when disabled", p)
		}
	}

	if err := e.EnableAll(); err != nil {
		t.Fatal(err)
	}
	if !e.Enabled() {
		t.Error("not Enabled after EnableAll")
	}
	for _, p := range []Pin{38, 56, 62} {
		if pins.level[p] {
			t.Errorf("enable pin %d should be low when enabled", p)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := CNCShield()
	cfg.Axes[Y].GearRatio = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero gear ratio should fail")
	}

	cfg = RAMPS()
	cfg.Timing.PulseWidth = 0
	if _, err := New(cfg, newRecordingPins(), DelayFunc(func(time.Duration) {})); err == nil {
		t.Error("New should reject zero pulse width")
	}
}
