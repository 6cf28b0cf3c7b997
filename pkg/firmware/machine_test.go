package firmware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/kxrobot/kxr/pkg/channel"
	"github.com/kxrobot/kxr/pkg/config"
	"github.com/kxrobot/kxr/pkg/kinematics"
	"github.com/kxrobot/kxr/pkg/link"
	"github.com/kxrobot/kxr/pkg/stepper"
)

type move struct {
	axis  stepper.Axis
	angle float64
}

type fakeDriver struct {
	moves   []move
	enabled bool
	fail    error
}

func (d *fakeDriver) Execute(axis stepper.Axis, angle float64) (int, error) {
	if d.fail != nil {
		return 0, d.fail
	}
	d.moves = append(d.moves, move{axis, angle})
	return int(angle), nil
}

func (d *fakeDriver) EnableAll() error  { d.enabled = true; return nil }
func (d *fakeDriver) DisableAll() error { d.enabled = false; return nil }

func newMachine(t *testing.T, cfg Config, d Driver) *Machine {
	t.Helper()
	m, err := New(cfg, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// jointsFor solves p with the default geometry and returns the axis angles.
func jointsFor(t *testing.T, p kinematics.Pose) [stepper.NumAxes]float64 {
	t.Helper()
	s, err := kinematics.NewSolver(kinematics.DefaultGeometry())
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve(%+v): %v", p, err)
	}
	return [stepper.NumAxes]float64{a.Theta0, a.Alpha, a.Beta}
}

func near(a, b [stepper.NumAxes]float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestHandle_AbsoluteMove(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	got := m.Handle("G1X400Y250Z300")
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("replies = %q, want [ok]", got)
	}

	want := jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 300})
	if a := m.Angles(); !near(a, want) {
		t.Errorf("angles = %v, want %v", a, want)
	}

	home := DefaultConfig().Home
	if len(d.moves) != stepper.NumAxes {
		t.Fatalf("moves = %v, want one per axis", d.moves)
	}
	for i, mv := range d.moves {
		if mv.axis != stepper.Axis(i) {
			t.Errorf("move %d on axis %s, want %s", i, mv.axis, stepper.Axis(i))
		}
		if delta := want[i] - home[i]; math.Abs(mv.angle-delta) > 1e-9 {
			t.Errorf("move %d = %f, want delta %f", i, mv.angle, delta)
		}
	}
	if p := m.Position(); p.X != 400 || p.Y != 250 || p.Z != 300 {
		t.Errorf("position = %+v", p)
	}
}

func TestHandle_PartialAndUnchanged(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	m.Handle("G1X400Y250Z300")
	d.moves = nil

	m.Handle("G1 X400")
	if len(d.moves) != 0 {
		t.Errorf("target equal to current position should not move, got %v", d.moves)
	}

	m.Handle("G0 Z200")
	want := jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 200})
	if a := m.Angles(); !near(a, want) {
		t.Errorf("angles = %v, want %v", a, want)
	}
	if len(d.moves) == 0 {
		t.Error("Z change should move the arm")
	}
}

func TestHandle_RelativeMode(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	m.Handle("G1X400Y250Z300")
	m.Handle("G91")
	if !m.Relative() {
		t.Fatal("G91 should switch to relative mode")
	}
	m.Handle("G1Z-100")
	m.Handle("G1Z-100")
	if p := m.Position(); p.Z != 100 || p.X != 400 {
		t.Errorf("position = %+v, want Z 100 at X 400", p)
	}
	if a, want := m.Angles(), jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 100}); !near(a, want) {
		t.Errorf("angles = %v, want %v", a, want)
	}

	m.Handle("G90")
	m.Handle("G1Z300")
	if a, want := m.Angles(), jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 300}); !near(a, want) {
		t.Errorf("angles = %v, want %v after absolute move", a, want)
	}
}

func TestHandle_Unreachable(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)
	before := m.Position()

	got := m.Handle("G1X900Y0Z0")
	if len(got) != 1 || !strings.HasPrefix(got[0], "error: ") || !strings.Contains(got[0], "unreachable") {
		t.Fatalf("replies = %q, want one unreachable error", got)
	}
	if len(d.moves) != 0 {
		t.Errorf("unreachable target moved the arm: %v", d.moves)
	}
	if m.Angles() != DefaultConfig().Home || m.Position() != before {
		t.Error("unreachable target changed the machine state")
	}
}

func TestHandle_Clamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamma = 180
	d := &fakeDriver{}
	m := newMachine(t, cfg, d)

	// Wrist center behind and below the shoulder.
	pose := kinematics.Pose{X: -620, Y: -30, Gamma: 180}
	s, _ := kinematics.NewSolver(cfg.Geometry)
	j, err := s.Solve(pose)
	if err != nil {
		t.Fatal(err)
	}
	if j.Alpha >= cfg.Limits[stepper.Y].Min {
		t.Fatalf("shoulder angle %f is within limits", j.Alpha)
	}

	if got := m.Handle("G1X-620Y-30Z0"); got[len(got)-1] != "ok" {
		t.Fatalf("replies = %q", got)
	}
	if a := m.Angles(); a[stepper.Y] != cfg.Limits[stepper.Y].Min {
		t.Errorf("Y angle = %v, want clamped to %v", a[stepper.Y], cfg.Limits[stepper.Y].Min)
	}
	for _, mv := range d.moves {
		if mv.axis == stepper.Y && mv.angle != cfg.Limits[stepper.Y].Min-cfg.Home[stepper.Y] {
			t.Errorf("Y move = %v, want %v", mv.angle, cfg.Limits[stepper.Y].Min-cfg.Home[stepper.Y])
		}
	}
}

func TestHandle_Commands(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	tests := []struct {
		line string
		want []string
	}{
		{"M17", []string{"Enabled motors", "ok"}},
		{"M18", []string{"Disabled motors", "ok"}},
		{"M114", []string{"X:0.00 Y:90.00 Z:-180.00", "ok"}},
		{"", nil},
		{"; comment", nil},
	}
	for _, tt := range tests {
		got := m.Handle(tt.line)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Handle(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestHandle_Reset(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)
	home := m.Position()

	m.Handle("G1X400Y250Z300")
	d.moves = nil

	if got := m.Handle("R1"); len(got) != 1 || got[0] != "ok" {
		t.Fatalf("R1 replies = %q", got)
	}
	if m.Angles() != DefaultConfig().Home {
		t.Errorf("angles = %v, want home", m.Angles())
	}
	if m.Position() != home {
		t.Errorf("position = %+v, want home %+v", m.Position(), home)
	}
	if len(d.moves) != 0 {
		t.Error("reset should not move the motors")
	}
}

func TestHandle_Errors(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	for _, line := range []string{"G5", "M17 X1", "G1 Q4", "hello"} {
		got := m.Handle(line)
		if len(got) != 1 || !strings.HasPrefix(got[0], "error: ") {
			t.Errorf("Handle(%q) = %q, want one error reply", line, got)
		}
	}

	before := m.Position()
	d.fail = stepper.ErrStepRange
	got := m.Handle("G1X400Y250Z300")
	if len(got) != 1 || !strings.Contains(got[0], stepper.ErrStepRange.Error()) {
		t.Errorf("driver failure replies = %q", got)
	}
	if m.Angles()[stepper.X] != 0 {
		t.Error("failed move should keep the previous angle")
	}
	if m.Position() != before {
		t.Error("failed move should keep the previous position")
	}
}

func TestNew_InvalidGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.L2 = 0
	if _, err := New(cfg, &fakeDriver{}); err == nil {
		t.Error("New accepted a zero-length link")
	}
}

// A streamed channel move lands on the joint angles the solver computes for
// the same target.
func TestMachine_FollowsChannelMoves(t *testing.T) {
	port := &linePort{}
	ch := channel.New(config.DefaultChannel("right", "/dev/fake"), func(link.Config) (link.Port, error) {
		return port, nil
	})
	if err := ch.Open(); err != nil {
		t.Fatal(err)
	}

	res := ch.Filter(r3.Vector{X: 200, Y: 100, Z: 600})
	sent, err := ch.Tick(res.Target, res.Accepted)
	if err != nil || sent == nil {
		t.Fatalf("Tick sent %v, err %v", sent, err)
	}
	if got := sent.Line(); got != "G1X400Y250Z300" {
		t.Fatalf("channel sent %q", got)
	}

	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)
	for _, line := range strings.Split(strings.TrimSpace(port.buf.String()), "\n") {
		if got := m.Handle(line); got[len(got)-1] != "ok" {
			t.Fatalf("Handle(%q) = %q", line, got)
		}
	}

	want := jointsFor(t, kinematics.Pose{X: float64(sent.X), Y: float64(sent.Y), Z: float64(sent.Z)})
	if a := m.Angles(); !near(a, want) {
		t.Errorf("firmware angles = %v, solver angles = %v", a, want)
	}
}

type linePort struct {
	buf bytes.Buffer
}

func (p *linePort) Read([]byte) (int, error)    { return 0, io.EOF }
func (p *linePort) Write(b []byte) (int, error) { return p.buf.Write(b) }
func (p *linePort) Close() error                { return nil }

type pipe struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestServe(t *testing.T) {
	d := &fakeDriver{}
	m := newMachine(t, DefaultConfig(), d)

	p := &pipe{in: strings.NewReader("M17\r\nG1X400Y250Z300\n\nM114\rR1\n" + strings.Repeat("G", MaxLine+1) + "\nM18\n")}
	if err := m.Serve(p); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	j := jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 300})
	want := strings.Join([]string{
		"Enabled motors", "ok",
		"ok",
		fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f", j[0], j[1], j[2]), "ok",
		"ok",
		"error: line too long",
		"Disabled motors", "ok",
	}, "\r\n") + "\r\n"
	if got := p.out.String(); got != want {
		t.Errorf("output:\n%q\nwant:\n%q", got, want)
	}
	if d.enabled {
		t.Error("drivers should end disabled")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error)    { return 0, errors.New("uart fault") }
func (failingReader) Write(b []byte) (int, error) { return len(b), nil }

func TestServe_ReadError(t *testing.T) {
	m := newMachine(t, DefaultConfig(), &fakeDriver{})
	if err := m.Serve(failingReader{}); err == nil {
		t.Error("Serve should return the read error")
	}
}

func TestMachine_WithExecutor(t *testing.T) {
	pins := &countingPins{}
	shield := stepper.CNCShield()
	e, err := stepper.New(shield, pins, stepper.DelayFunc(func(d time.Duration) {}))
	if err != nil {
		t.Fatal(err)
	}
	m := newMachine(t, DefaultConfig(), e)

	if got := m.Handle("G1X400Y250Z300"); got[len(got)-1] != "ok" {
		t.Fatalf("replies = %q", got)
	}

	home := DefaultConfig().Home
	j := jointsFor(t, kinematics.Pose{X: 400, Y: 250, Z: 300})
	for i, a := range shield.Axes {
		want := stepper.StepCount(j[i]-home[i], a)
		if got := pins.high[a.StepPin]; got != want {
			t.Errorf("%s step pulses = %d, want %d", stepper.Axis(i), got, want)
		}
	}
}

type countingPins struct {
	high map[stepper.Pin]int
}

func (c *countingPins) ConfigureOutput(stepper.Pin) error { return nil }

func (c *countingPins) SetPin(p stepper.Pin, high bool) error {
	if c.high == nil {
		c.high = map[stepper.Pin]int{}
	}
	if high {
		c.high[p]++
	}
	return nil
}
