// Package gcode implements the line protocol between the host and the arm firmware.
//
// The host writes newline-terminated ASCII lines: absolute moves (G1X<int>Y<int>Z<int>
// with an optional F<int> feed rate), M17/M18 to enable or disable the drivers, or
// arbitrary raw text. The firmware parses each line into an Action.
package gcode

import (
	"strconv"
	"strings"
)

// Terminator ends every line on the wire.
const Terminator = "\n"

// Command is a host-side instruction for the firmware.
type Command interface {
	// Line returns the command text without the terminator.
	Line() string
}

// Move is an absolute move. Feed is omitted from the line when zero.
type Move struct {
	X, Y, Z int
	Feed    int
}

func (m Move) Line() string {
	var sb strings.Builder
	sb.WriteString("G1X")
	sb.WriteString(strconv.Itoa(m.X))
	sb.WriteString("Y")
	sb.WriteString(strconv.Itoa(m.Y))
	sb.WriteString("Z")
	sb.WriteString(strconv.Itoa(m.Z))
	if m.Feed != 0 {
		sb.WriteString("F")
		sb.WriteString(strconv.Itoa(m.Feed))
	}
	return sb.String()
}

// Enable switches on all axis drivers.
type Enable struct{}

func (Enable) Line() string { return "M17" }

// Disable switches off all axis drivers.
type Disable struct{}

func (Disable) Line() string { return "M18" }

// Raw is operator-supplied text passed through verbatim.
type Raw string

func (r Raw) Line() string { return string(r) }

// Encode returns the bytes to put on the wire for c.
func Encode(c Command) []byte {
	return []byte(c.Line() + Terminator)
}
