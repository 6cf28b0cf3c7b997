// Package firmware runs the controller-side command loop: each received line is
// decoded into an action and carried out on the stepper drivers. Move targets
// are tool positions in millimetres; the machine solves them into joint angles
// and drives each axis by the angle difference.
package firmware

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/kxrobot/kxr/pkg/gcode"
	"github.com/kxrobot/kxr/pkg/kinematics"
	"github.com/kxrobot/kxr/pkg/stepper"
)

// MaxLine is the longest accepted command line, terminator excluded.
const MaxLine = 96

var errLineTooLong = errors.New("line too long")

// Driver is the motion backend of a Machine. *stepper.Executor implements it.
type Driver interface {
	Execute(axis stepper.Axis, angle float64) (int, error)
	EnableAll() error
	DisableAll() error
}

// Limit bounds the commanded angle of one axis, in degrees.
type Limit struct {
	Min float64
	Max float64
}

func (l Limit) clamp(v float64) float64 {
	return math.Max(l.Min, math.Min(l.Max, v))
}

// Config holds the arm geometry, the tool angle held during moves, and per
// axis (X base, Y shoulder, Z elbow) the home angle and the angle limits.
// Angles use the solver's joint convention: X is Theta0, Y is Alpha, Z is Beta.
type Config struct {
	Geometry kinematics.Geometry
	Gamma    float64
	Home     [stepper.NumAxes]float64
	Limits   [stepper.NumAxes]Limit
}

// DefaultConfig returns the arm's reset pose: base at 0, shoulder upright, elbow folded.
func DefaultConfig() Config {
	return Config{
		Geometry: kinematics.DefaultGeometry(),
		Home:     [stepper.NumAxes]float64{0, 90, -180},
		Limits: [stepper.NumAxes]Limit{
			{Min: -180, Max: 180},
			{Min: -90, Max: 270},
			{Min: -180, Max: 0},
		},
	}
}

// Machine tracks the commanded tool position and joint angles open loop and
// drives the steppers by the angle difference on every move.
type Machine struct {
	cfg      Config
	drv      Driver
	solver   *kinematics.Solver
	home     kinematics.Pose
	pos      kinematics.Pose
	angles   [stepper.NumAxes]float64
	relative bool
}

// New returns a Machine at its home angles in absolute mode.
func New(cfg Config, drv Driver) (*Machine, error) {
	solver, err := kinematics.NewSolver(cfg.Geometry)
	if err != nil {
		return nil, fmt.Errorf("firmware geometry: %w", err)
	}
	m := &Machine{cfg: cfg, drv: drv, solver: solver}
	m.home = solver.Forward(kinematics.JointAngles{
		Theta0: cfg.Home[stepper.X],
		Alpha:  cfg.Home[stepper.Y],
		Beta:   cfg.Home[stepper.Z],
		Theta:  cfg.Gamma - cfg.Home[stepper.Y] - cfg.Home[stepper.Z],
	})
	m.reset()
	return m, nil
}

func (m *Machine) reset() {
	m.angles = m.cfg.Home
	m.pos = m.home
}

// Angles returns the commanded angle of every axis.
func (m *Machine) Angles() [stepper.NumAxes]float64 {
	return m.angles
}

// Position returns the last commanded tool position.
func (m *Machine) Position() kinematics.Pose {
	return m.pos
}

// Relative reports whether move targets are offsets.
func (m *Machine) Relative() bool {
	return m.relative
}

// Handle executes one command line and returns the reply lines. Blank and
// comment lines produce no reply.
func (m *Machine) Handle(line string) []string {
	a, err := gcode.Parse(line)
	if err != nil {
		return []string{errorReply(err)}
	}
	if a == nil {
		return nil
	}

	var replies []string
	switch a := a.(type) {
	case gcode.MoveAction:
		if err := m.move(a); err != nil {
			return []string{errorReply(err)}
		}
	case gcode.ModeAction:
		m.relative = a.Relative
	case gcode.EnableAction:
		if err := m.drv.EnableAll(); err != nil {
			return []string{errorReply(err)}
		}
		replies = append(replies, "Enabled motors")
	case gcode.DisableAction:
		if err := m.drv.DisableAll(); err != nil {
			return []string{errorReply(err)}
		}
		replies = append(replies, "Disabled motors")
	case gcode.ReportAction:
		replies = append(replies, m.report())
	case gcode.ResetAction:
		m.reset()
	default:
		return []string{errorReply(fmt.Errorf("unhandled action %T", a))}
	}
	return append(replies, "ok")
}

func (m *Machine) move(a gcode.MoveAction) error {
	target := [stepper.NumAxes]float64{m.pos.X, m.pos.Y, m.pos.Z}
	for i := range stepper.NumAxes {
		switch {
		case !a.Has[i]:
		case m.relative:
			target[i] += a.Targets[i]
		default:
			target[i] = a.Targets[i]
		}
	}

	pose := kinematics.Pose{X: target[0], Y: target[1], Z: target[2], Gamma: m.cfg.Gamma}
	joints, err := m.solver.Solve(pose)
	if err != nil {
		return err
	}

	for i, angle := range [stepper.NumAxes]float64{joints.Theta0, joints.Alpha, joints.Beta} {
		angle = m.cfg.Limits[i].clamp(angle)
		delta := angle - m.angles[i]
		if delta == 0 {
			continue
		}
		if _, err := m.drv.Execute(stepper.Axis(i), delta); err != nil {
			return fmt.Errorf("axis %s: %w", stepper.Axis(i), err)
		}
		m.angles[i] = angle
	}
	m.pos = pose
	return nil
}

func (m *Machine) report() string {
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f", m.angles[0], m.angles[1], m.angles[2])
}

func errorReply(err error) string {
	return "error: " + err.Error()
}

// Serve reads CR or LF terminated lines from rw and writes the replies back
// until rw returns an error. io.EOF ends Serve without error.
func (m *Machine) Serve(rw io.ReadWriter) error {
	buf := make([]byte, 32)
	line := make([]byte, 0, MaxLine)
	overflow := false

	for {
		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			if b != '\r' && b != '\n' {
				if len(line) < MaxLine {
					line = append(line, b)
				} else {
					overflow = true
				}
				continue
			}

			var replies []string
			switch {
			case overflow:
				replies = []string{errorReply(errLineTooLong)}
			case len(line) > 0:
				replies = m.Handle(string(line))
			}
			line, overflow = line[:0], false

			for _, r := range replies {
				if _, werr := io.WriteString(rw, r+"\r\n"); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
