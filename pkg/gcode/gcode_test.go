package gcode

import (
	"errors"
	"testing"
)

func TestMove_Line(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Move{X: 10, Y: -20, Z: 30}, "G1X10Y-20Z30"},
		{Move{X: 0, Y: 0, Z: 0, Feed: 1500}, "G1X0Y0Z0F1500"},
		{Enable{}, "M17"},
		{Disable{}, "M18"},
		{Raw("G28 ; home"), "G28 ; home"},
	}

	for _, tt := range tests {
		if got := tt.cmd.Line(); got != tt.want {
			t.Errorf("Line() = %q, want %q", got, tt.want)
		}
	}

	if got := string(Encode(Move{X: 1, Y: 2, Z: 3})); got != "G1X1Y2Z3\n" {
		t.Errorf("Encode = %q", got)
	}
}

func TestParse_Actions(t *testing.T) {
	tests := []struct {
		line string
		want Action
	}{
		{"G1X10Y-20Z30", MoveAction{Targets: [3]float64{10, -20, 30}, Has: [3]bool{true, true, true}}},
		{"G1X10Y-20Z30F1500", MoveAction{Targets: [3]float64{10, -20, 30}, Has: [3]bool{true, true, true}, Feed: 1500}},
		{"g0 y1.5", MoveAction{Targets: [3]float64{0, 1.5, 0}, Has: [3]bool{false, true, false}}},
		{"G01 Z-4 ; lower", MoveAction{Targets: [3]float64{0, 0, -4}, Has: [3]bool{false, false, true}}},
		{"G90", ModeAction{Relative: false}},
		{"G91", ModeAction{Relative: true}},
		{"M17", EnableAction{}},
		{"m18", DisableAction{}},
		{"M114", ReportAction{}},
		{"R1", ResetAction{}},
		{"(note) M17", EnableAction{}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.line)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %#v, want %#v", tt.line, got, tt.want)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	for _, line := range []string{"", "   ", "; just a comment", "\r\n"} {
		a, err := Parse(line)
		if err != nil || a != nil {
			t.Errorf("Parse(%q) = %v, %v, want nil, nil", line, a, err)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"G28", ErrUnknownCommand},
		{"Q5", ErrUnknownCommand},
		{"G1X", ErrSyntax},
		{"G1 X1 E5", ErrSyntax},
		{"M17 S1", ErrSyntax},
		{"G1.5 X1", ErrSyntax},
		{"G1 X1 (open", ErrSyntax},
		{"G1 #", ErrSyntax},
		{"G1 X1-2", ErrSyntax},
	}

	for _, tt := range tests {
		_, err := Parse(tt.line)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestRoundTrip_HostToFirmware(t *testing.T) {
	m := Move{X: 45, Y: -90, Z: 12, Feed: 600}
	a, err := Parse(m.Line())
	if err != nil {
		t.Fatalf("Parse(%q): %v", m.Line(), err)
	}
	move, ok := a.(MoveAction)
	if !ok {
		t.Fatalf("Parse returned %T, want MoveAction", a)
	}
	if move.Targets != [3]float64{45, -90, 12} || move.Feed != 600 {
		t.Errorf("decoded %+v", move)
	}
}
