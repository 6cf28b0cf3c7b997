// Package robot reads a hand-guided leader arm built from Feetech bus servos.
package robot

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names of the leader arm, one per kinematic joint.
const (
	Base     MotorName = "base"
	Shoulder MotorName = "shoulder"
	Elbow    MotorName = "elbow"
	Wrist    MotorName = "wrist"
)

// AllMotors returns all motor names in order (matching servo IDs 1-4).
func AllMotors() []MotorName {
	return []MotorName{
		Base,
		Shoulder,
		Elbow,
		Wrist,
	}
}
