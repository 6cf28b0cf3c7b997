// Package tracking describes the body-tracking input of the control cycle:
// subjects made of named body points, each with a confidence state.
//
// Sources report positions in meters.
package tracking

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/golang/geo/r3"
)

var (
	// ErrNoSubject is returned when a frame holds no tracked subject.
	ErrNoSubject = errors.New("no tracked subject")
	// ErrUnknownBodyPoint is returned for a body point name or index outside the set.
	ErrUnknownBodyPoint = errors.New("unknown body point")
)

// BodyPoint names a tracked joint of a subject.
type BodyPoint int

const (
	Head BodyPoint = iota
	LeftHand
	RightHand
	LeftFoot
	RightFoot
)

var bodyPointNames = [...]string{
	Head:      "head",
	LeftHand:  "left_hand",
	RightHand: "right_hand",
	LeftFoot:  "left_foot",
	RightFoot: "right_foot",
}

// BodyPoints returns every body point in index order.
func BodyPoints() []BodyPoint {
	return []BodyPoint{Head, LeftHand, RightHand, LeftFoot, RightFoot}
}

// BodyPointFromIndex returns the body point with index i.
func BodyPointFromIndex(i int) (BodyPoint, error) {
	if i < 0 || i >= len(bodyPointNames) {
		return 0, fmt.Errorf("%w: index %d", ErrUnknownBodyPoint, i)
	}
	return BodyPoint(i), nil
}

// ParseBodyPoint parses a body point name such as "right_hand".
func ParseBodyPoint(s string) (BodyPoint, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, name := range bodyPointNames {
		if name == norm {
			return BodyPoint(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBodyPoint, s)
}

func (p BodyPoint) String() string {
	if p < 0 || int(p) >= len(bodyPointNames) {
		return fmt.Sprintf("body_point(%d)", int(p))
	}
	return bodyPointNames[p]
}

func (p BodyPoint) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(bodyPointNames) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownBodyPoint, int(p))
	}
	return []byte(p.String()), nil
}

func (p *BodyPoint) UnmarshalText(b []byte) error {
	v, err := ParseBodyPoint(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Confidence is the tracking state of a subject or point.
type Confidence int

const (
	NotTracked Confidence = iota
	Inferred
	Tracked
)

var confidenceNames = [...]string{
	NotTracked: "not_tracked",
	Inferred:   "inferred",
	Tracked:    "tracked",
}

func (c Confidence) String() string {
	if c < 0 || int(c) >= len(confidenceNames) {
		return fmt.Sprintf("confidence(%d)", int(c))
	}
	return confidenceNames[c]
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range confidenceNames {
		if name == s {
			*c = Confidence(i)
			return nil
		}
	}
	return fmt.Errorf("unknown confidence %q", string(b))
}

// Point is one body point position with its confidence.
type Point struct {
	Position   r3.Vector  `json:"position"`
	Confidence Confidence `json:"confidence"`
}

// Subject is one tracked body.
type Subject struct {
	ID         int                 `json:"id"`
	Confidence Confidence          `json:"confidence"`
	Points     map[BodyPoint]Point `json:"points"`
}

// Point returns the named body point. A point the source did not report is NotTracked.
func (s Subject) Point(p BodyPoint) Point {
	return s.Points[p]
}

// Frame is one sample of every subject the source sees.
type Frame struct {
	Timestamp time.Time `json:"timestamp"`
	Subjects  []Subject `json:"subjects"`
}

// Tracked yields the subjects whose confidence is Tracked, in slot order.
func (f Frame) Tracked() iter.Seq[Subject] {
	return func(yield func(Subject) bool) {
		for _, s := range f.Subjects {
			if s.Confidence != Tracked {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// FirstTracked returns the first tracked subject of the frame.
func (f Frame) FirstTracked() (Subject, error) {
	for s := range f.Tracked() {
		return s, nil
	}
	return Subject{}, ErrNoSubject
}

// Source produces frames. Poll never blocks: ok is false when no new frame is
// ready and the caller should reuse its previous one.
type Source interface {
	Poll() (f Frame, ok bool)
}
