package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/kxrobot/kxr/pkg/kinematics"
)

// BusBaudRate is the factory baud rate of STS servos.
const BusBaudRate = 1_000_000

// Arm represents a leader arm with one servo per joint.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm creates and initializes an arm connection.
func NewArm(port string, cal Calibration) (*Arm, error) {
	if !cal.Complete() {
		return nil, fmt.Errorf("arm on %s is not calibrated", port)
	}

	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: BusBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	// Create servo group from calibration IDs
	ids := cal.MotorIDs()
	group := feetech.NewServoGroupByIDs(bus, ids...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos so the arm can be moved by hand.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadPositions reads current positions from all motors.
// Returns normalized positions in the range [-100, 100].
func (a *Arm) ReadPositions(ctx context.Context) (map[MotorName]float64, error) {
	// Read raw positions using sync read
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	// Normalize each position
	positions := make(map[MotorName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(raw)
	}

	return positions, nil
}

// ReadAngles reads the joint angles of the arm in degrees.
func (a *Arm) ReadAngles(ctx context.Context) (kinematics.JointAngles, error) {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return kinematics.JointAngles{}, fmt.Errorf("read positions: %w", err)
	}
	return a.calibration.JointAngles(rawPositions)
}
