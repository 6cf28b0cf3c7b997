package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// ErrUnreachable is matched by every UnreachableError.
var ErrUnreachable = errors.New("pose unreachable")

// ErrRoundTrip is returned by Validate when forward kinematics does not reproduce the target.
var ErrRoundTrip = errors.New("forward kinematics does not reproduce target")

// UnreachableError reports a pose the arm cannot reach and why.
type UnreachableError struct {
	Pose   Pose
	Reason string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("pose (%.2f, %.2f, %.2f, %.2f°) unreachable: %s",
		e.Pose.X, e.Pose.Y, e.Pose.Z, e.Pose.Gamma, e.Reason)
}

// Is makes errors.Is(err, ErrUnreachable) true.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// acos arguments this close to ±1 are rounding, not a reach violation.
const unitSlack = 1e-9

// Solver maps poses to joint angles and back for one arm geometry.
type Solver struct {
	geom Geometry
}

// NewSolver creates a solver for the given geometry.
func NewSolver(geom Geometry) (*Solver, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	return &Solver{geom: geom}, nil
}

// Geometry returns the current link dimensions.
func (s *Solver) Geometry() Geometry {
	return s.geom
}

// SetGeometry replaces the link dimensions. Previously solved angles are not recomputed.
func (s *Solver) SetGeometry(geom Geometry) error {
	if err := geom.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	s.geom = geom
	return nil
}

func (s *Solver) tolerance() float64 {
	return unitSlack * math.Max(1, s.geom.Reach())
}

// Solve computes the joint angles that place the tool at p.
// The elbow angle is returned negated to match the motor rotation convention.
func (s *Solver) Solve(p Pose) (JointAngles, error) {
	g := s.geom
	tol := s.tolerance()

	for _, v := range []float64{p.X, p.Y, p.Z, p.Gamma} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return JointAngles{}, &UnreachableError{Pose: p, Reason: "non-finite coordinate"}
		}
	}

	reach := p.Position().Norm()
	if reach > g.Reach()+tol {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "beyond full extension"}
	}
	if reach < math.Abs(g.L1-g.L2)-tol {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "inside the inner envelope"}
	}

	// Wrist center: retract the last link along the tool direction.
	gamma := Radians(p.Gamma)
	x0 := p.X - g.L3*math.Cos(gamma)
	y0 := p.Y - g.L3*math.Sin(gamma)
	r0 := math.Hypot(x0, y0)
	if r0 < tol {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "wrist center on the shoulder axis"}
	}

	cosElbow, ok := clampUnit((g.L1*g.L1 + g.L2*g.L2 - r0*r0) / (2 * g.L1 * g.L2))
	if !ok {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "wrist center out of elbow range"}
	}
	beta := math.Pi - math.Acos(cosElbow)

	cosShoulder, ok := clampUnit((r0*r0 + g.L1*g.L1 - g.L2*g.L2) / (2 * r0 * g.L1))
	if !ok {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "wrist center out of shoulder range"}
	}
	alpha := math.Atan2(y0, x0) + math.Acos(cosShoulder)

	theta := gamma - alpha + beta

	rz := math.Hypot(p.X, p.Y)
	if rz < tol {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "target on the base axis"}
	}
	cosYaw, ok := clampUnit(p.Z / rz)
	if !ok {
		return JointAngles{}, &UnreachableError{Pose: p, Reason: "lateral offset exceeds planar reach"}
	}

	return JointAngles{
		Theta0: Degrees(math.Acos(cosYaw)),
		Alpha:  Degrees(alpha),
		Beta:   -Degrees(beta),
		Theta:  Degrees(theta),
	}, nil
}

func clampUnit(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, false
	case v > 1:
		return 1, v-1 <= unitSlack
	case v < -1:
		return -1, -1-v <= unitSlack
	}
	return v, true
}

// frame is a point and heading in the arm plane, heading measured from the reach axis.
type frame struct {
	origin  r3.Vector
	heading s1.Angle
}

func (f frame) rotate(deg float64) frame {
	f.heading += s1.Angle(deg) * s1.Degree
	return f
}

func (f frame) translate(length float64) frame {
	rad := f.heading.Radians()
	f.origin = f.origin.Add(r3.Vector{X: math.Cos(rad), Y: math.Sin(rad)}.Mul(length))
	return f
}

// yaw places an arm-plane point at its lateral offset for the base yaw.
func yaw(p r3.Vector, theta0 float64) r3.Vector {
	p.Z = math.Hypot(p.X, p.Y) * math.Cos(Radians(theta0))
	return p
}

// Chain returns the joint origins of the configuration in render order:
// base, shoulder, elbow, wrist, tool. Renderers must compose the same
// transforms: base yaw, then per joint a rotation followed by its link.
func (s *Solver) Chain(a JointAngles) []r3.Vector {
	g := s.geom
	points := []r3.Vector{{Y: -g.BaseHeight}, {}}

	f := frame{}
	for _, j := range []struct{ angle, length float64 }{
		{a.Alpha, g.L1},
		{a.Beta, g.L2},
		{a.Theta, g.L3},
	} {
		f = f.rotate(j.angle).translate(j.length)
		points = append(points, yaw(f.origin, a.Theta0))
	}
	return points
}

// Forward computes the tool pose reached by a.
func (s *Solver) Forward(a JointAngles) Pose {
	chain := s.Chain(a)
	tool := chain[len(chain)-1]
	return Pose{X: tool.X, Y: tool.Y, Z: tool.Z, Gamma: a.Gamma()}
}

// Validate solves p and checks that forward kinematics lands back on it.
func (s *Solver) Validate(p Pose) (JointAngles, error) {
	a, err := s.Solve(p)
	if err != nil {
		return JointAngles{}, err
	}
	got := s.Forward(a)
	if d := got.Position().Distance(p.Position()); d > 1e-6*math.Max(1, s.geom.Reach()) {
		return a, fmt.Errorf("drift %.6f at (%.3f, %.3f, %.3f): %w", d, got.X, got.Y, got.Z, ErrRoundTrip)
	}
	if math.Abs(got.Gamma-p.Gamma) > 1e-6 {
		return a, fmt.Errorf("tool angle %.6f, want %.6f: %w", got.Gamma, p.Gamma, ErrRoundTrip)
	}
	return a, nil
}
