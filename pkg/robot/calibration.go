package robot

import (
	"fmt"

	"github.com/kxrobot/kxr/pkg/kinematics"
)

// CountsPerTurn is the resolution of an STS servo position.
const CountsPerTurn = 4096

// MotorCalibration holds calibration data for a single motor.
// HomingOffset is the raw position at which the joint reads zero degrees.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Degrees converts a raw servo position to a joint angle. Drive mode 1 inverts
// the direction.
func (c MotorCalibration) Degrees(raw int) float64 {
	deg := float64(raw-c.HomingOffset) * 360 / CountsPerTurn
	if c.DriveMode == 1 {
		deg = -deg
	}
	return deg
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Complete reports whether every joint motor is calibrated.
func (c Calibration) Complete() bool {
	for _, name := range AllMotors() {
		if _, ok := c[name]; !ok {
			return false
		}
	}
	return true
}

// JointAngles converts raw positions keyed by servo ID into the arm's joint angles.
func (c Calibration) JointAngles(raw map[int]int) (kinematics.JointAngles, error) {
	deg := make(map[MotorName]float64, len(AllMotors()))
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok {
			return kinematics.JointAngles{}, fmt.Errorf("motor %s not calibrated", name)
		}
		pos, ok := raw[mc.ID]
		if !ok {
			return kinematics.JointAngles{}, fmt.Errorf("no position for %s (id %d)", name, mc.ID)
		}
		deg[name] = mc.Degrees(pos)
	}
	return kinematics.JointAngles{
		Theta0: deg[Base],
		Alpha:  deg[Shoulder],
		Beta:   deg[Elbow],
		Theta:  deg[Wrist],
	}, nil
}
