// Package kinematics solves the base-yaw plus shoulder/elbow/wrist chain of the arm.
//
// Angles are degrees at the API and radians internally.
package kinematics

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// Geometry holds the physical link dimensions of the arm.
type Geometry struct {
	L1          float64 `json:"l1"`
	L2          float64 `json:"l2"`
	L3          float64 `json:"l3"`
	BaseHeight  float64 `json:"base_height"`
	LinkRadius  float64 `json:"link_radius"`
	JointRadius float64 `json:"joint_radius"`
}

// DefaultGeometry returns the link lengths of the reference arm, in millimeters.
func DefaultGeometry() Geometry {
	return Geometry{
		L1:          300,
		L2:          170,
		L3:          170,
		BaseHeight:  75,
		LinkRadius:  12.5,
		JointRadius: 15,
	}
}

// Validate checks that every link has a positive length.
func (g Geometry) Validate() error {
	var errs []error
	for _, l := range []struct {
		name string
		v    float64
	}{{"l1", g.L1}, {"l2", g.L2}, {"l3", g.L3}} {
		if !(l.v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", l.name, l.v))
		}
	}
	if g.BaseHeight < 0 || g.LinkRadius < 0 || g.JointRadius < 0 {
		errs = append(errs, errors.New("base height and radii must not be negative"))
	}
	return errors.Join(errs...)
}

// Reach is the distance from the shoulder to the tool at full extension.
func (g Geometry) Reach() float64 {
	return g.L1 + g.L2 + g.L3
}

// Pose is a desired end-effector target. Gamma is the tool angle in degrees.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Gamma float64 `json:"gamma"`
}

// Position returns the target point without the tool angle.
func (p Pose) Position() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// JointAngles is a solved configuration, all in degrees.
type JointAngles struct {
	Theta0 float64 `json:"theta0"` // base yaw
	Alpha  float64 `json:"alpha"`  // shoulder
	Beta   float64 `json:"beta"`   // elbow
	Theta  float64 `json:"theta"`  // wrist
}

// Gamma is the tool angle implied by the three planar joints.
func (a JointAngles) Gamma() float64 {
	return a.Alpha + a.Beta + a.Theta
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return (s1.Angle(rad) * s1.Radian).Degrees()
}
