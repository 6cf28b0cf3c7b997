// Package kxr drives stepper-motor robot arms from body tracking.
//
// A tracking source reports body points each cycle. Every channel follows one
// point: its motion filter gates and scales the raw position, and the channel
// writes an absolute move to its arm's controller over serial, at most once per
// cooldown window. The first channel's target is solved with inverse
// kinematics for the on-screen arm.
//
// # Installation
//
//	go install github.com/kxrobot/kxr/cmd/kxr@latest
//	tinygo flash -target arduino ./cmd/kxr-firmware
//
// # Usage
//
// First, run setup to assign serial ports to channels and calibrate the leader arm:
//
//	kxr setup
//
// Then start teleoperation:
//
//	kxr teleoperate
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/kxr: CLI with setup, teleoperate, send, solve and ports commands
//   - cmd/kxr-firmware: TinyGo firmware for the arm controller
//   - pkg/kinematics: inverse and forward kinematics of the arm
//   - pkg/filter: per-axis motion filter
//   - pkg/channel: per-arm serial channel with cooldown
//   - pkg/link: serial port drivers and write timeouts
//   - pkg/gcode: line protocol between host and firmware
//   - pkg/tracking: body points, tracking sources, recordings
//   - pkg/robot: Feetech leader arm and its calibration
//   - pkg/teleop: control loop
//   - pkg/config: kxr.json configuration
//   - pkg/stepper: step and direction pulse executor
//   - pkg/firmware: firmware command loop
package kxr
