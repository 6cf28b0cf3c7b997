package gcode

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnknownCommand is returned for a command token with no action.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrSyntax is returned for a line that cannot be tokenized.
	ErrSyntax = errors.New("syntax error")
)

// Word is one letter/value pair of a line, e.g. X-12.5.
type Word struct {
	Letter byte
	Value  float64
}

// Action is a decoded firmware instruction.
type Action interface {
	action()
}

// MoveAction moves the tool to an X/Y/Z position. Has marks which coordinates were given.
type MoveAction struct {
	Targets [3]float64
	Has     [3]bool
	Feed    float64
}

// ModeAction switches between absolute and relative targets.
type ModeAction struct {
	Relative bool
}

// EnableAction switches on all drivers.
type EnableAction struct{}

// DisableAction switches off all drivers.
type DisableAction struct{}

// ReportAction asks for the current axis angles.
type ReportAction struct{}

// ResetAction restores the home angles without moving.
type ResetAction struct{}

func (MoveAction) action()    {}
func (ModeAction) action()    {}
func (EnableAction) action()  {}
func (DisableAction) action() {}
func (ReportAction) action()  {}
func (ResetAction) action()   {}

type decoder func(params []Word) (Action, error)

// actions maps a command token to its decoder.
var actions = map[string]decoder{
	"G0":   decodeMove,
	"G1":   decodeMove,
	"G90":  noParams(ModeAction{Relative: false}),
	"G91":  noParams(ModeAction{Relative: true}),
	"M17":  noParams(EnableAction{}),
	"M18":  noParams(DisableAction{}),
	"M114": noParams(ReportAction{}),
	"R1":   noParams(ResetAction{}),
}

func noParams(a Action) decoder {
	return func(params []Word) (Action, error) {
		if len(params) > 0 {
			return nil, fmt.Errorf("%w: unexpected parameter %c", ErrSyntax, params[0].Letter)
		}
		return a, nil
	}
}

func decodeMove(params []Word) (Action, error) {
	var m MoveAction
	for _, w := range params {
		switch w.Letter {
		case 'X':
			m.Targets[0], m.Has[0] = w.Value, true
		case 'Y':
			m.Targets[1], m.Has[1] = w.Value, true
		case 'Z':
			m.Targets[2], m.Has[2] = w.Value, true
		case 'F':
			m.Feed = w.Value
		default:
			return nil, fmt.Errorf("%w: unsupported move parameter %c", ErrSyntax, w.Letter)
		}
	}
	return m, nil
}

// Parse decodes one line. Blank lines and comments return a nil Action.
func Parse(line string) (Action, error) {
	words, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, nil
	}

	head := words[0]
	num := int(head.Value)
	if float64(num) != head.Value || num < 0 {
		return nil, fmt.Errorf("%w: command number %v", ErrSyntax, head.Value)
	}
	token := string(head.Letter) + strconv.Itoa(num)

	decode, ok := actions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, token)
	}
	return decode(words[1:])
}

// Tokenize splits a line into words. ';' starts a comment that runs to the end
// of the line and parentheses enclose inline comments.
func Tokenize(line string) ([]Word, error) {
	var words []Word
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == ';':
			return words, nil
		case c == '(':
			end := i + 1
			for end < len(line) && line[end] != ')' {
				end++
			}
			if end == len(line) {
				return nil, fmt.Errorf("%w: unterminated comment", ErrSyntax)
			}
			i = end + 1
		case isLetter(c):
			start := i + 1
			end := start
			for end < len(line) && isNumberByte(line[end]) {
				end++
			}
			if end == start {
				return nil, fmt.Errorf("%w: %c without value", ErrSyntax, c)
			}
			v, err := strconv.ParseFloat(line[start:end], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, line[start:end])
			}
			words = append(words, Word{Letter: toUpper(c), Value: v})
			i = end
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, c)
		}
	}
	return words, nil
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
