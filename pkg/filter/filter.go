// Package filter turns noisy tracked displacements into clamped workspace targets.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Axis identifies one of the three filtered axes.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// Axes returns all axes in order.
func Axes() []Axis {
	return []Axis{X, Y, Z}
}

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// AxisConfig holds the gating, scaling and workspace bounds for one axis.
type AxisConfig struct {
	FilterThreshold float64 `json:"filter_threshold"` // |raw| at or above this is noise
	SampleThreshold float64 `json:"sample_threshold"` // minimum change from last accepted
	Sensitivity     float64 `json:"sensitivity"`
	Gain            float64 `json:"gain"`
	Origin          float64 `json:"origin"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
}

// Validate checks the thresholds and bounds.
func (c AxisConfig) Validate() error {
	if c.FilterThreshold <= 0 {
		return errors.New("filter threshold must be positive")
	}
	if c.SampleThreshold < 0 {
		return errors.New("sample threshold must not be negative")
	}
	if c.Min > c.Max {
		return fmt.Errorf("min %v above max %v", c.Min, c.Max)
	}
	return nil
}

func (c AxisConfig) clamp(v float64) float64 {
	return math.Min(math.Max(v, c.Min), c.Max)
}

// Config holds one AxisConfig per axis.
type Config struct {
	X AxisConfig `json:"x"`
	Y AxisConfig `json:"y"`
	Z AxisConfig `json:"z"`
}

// Axis returns the configuration of a.
func (c Config) Axis(a Axis) AxisConfig {
	switch a {
	case Y:
		return c.Y
	case Z:
		return c.Z
	}
	return c.X
}

// Validate checks every axis.
func (c Config) Validate() error {
	var errs []error
	for _, a := range Axes() {
		if err := c.Axis(a).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a, err))
		}
	}
	return errors.Join(errs...)
}

// State is the last accepted value per axis. It persists across cycles.
type State [3]float64

// Vector returns the state as a vector.
func (s State) Vector() r3.Vector {
	return r3.Vector{X: s[X], Y: s[Y], Z: s[Z]}
}

// Result is the outcome of one filter update.
type Result struct {
	Accepted int       // axes that accepted a new sample this cycle
	Target   r3.Vector // clamped destination, computed whether or not anything changed
}

// Filter gates raw displacement samples for one channel.
type Filter struct {
	cfg   Config
	state State
}

// New creates a filter with zeroed state.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Config returns the filter configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// State returns the last accepted values.
func (f *Filter) State() State {
	return f.state
}

// Reset zeroes the last accepted values.
func (f *Filter) Reset() {
	f.state = State{}
}

// Update runs one raw sample through every axis and returns the clamped target.
func (f *Filter) Update(raw r3.Vector) Result {
	in := [3]float64{raw.X, raw.Y, raw.Z}
	var res Result
	var out [3]float64

	for _, a := range Axes() {
		cfg := f.cfg.Axis(a)
		v := in[a]
		if math.Abs(v) < cfg.FilterThreshold && math.Abs(v-f.state[a]) >= cfg.SampleThreshold {
			f.state[a] = cfg.Sensitivity * v
			res.Accepted++
		}
		out[a] = cfg.clamp(f.state[a]*cfg.Gain + cfg.Origin)
	}

	res.Target = r3.Vector{X: out[X], Y: out[Y], Z: out[Z]}
	return res
}
