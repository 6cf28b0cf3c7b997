// Package config loads and saves the kxr.json configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kxrobot/kxr/pkg/channel"
	"github.com/kxrobot/kxr/pkg/filter"
	"github.com/kxrobot/kxr/pkg/kinematics"
	"github.com/kxrobot/kxr/pkg/link"
	"github.com/kxrobot/kxr/pkg/robot"
	"github.com/kxrobot/kxr/pkg/tracking"
)

const DefaultFile = "kxr.json"

// Tracking source kinds.
const (
	SourceReplay = "replay"
	SourceArm    = "arm"
)

// Config holds the whole application configuration
type Config struct {
	Hz       int                 `json:"hz"`
	Gamma    float64             `json:"gamma"` // tool angle of the simulated arm, degrees
	Geometry kinematics.Geometry `json:"geometry"`
	Tracking TrackingConfig      `json:"tracking"`
	Leader   ArmConfig           `json:"leader"`
	Channels []channel.Config    `json:"channels"`
}

// TrackingConfig selects where body points come from
type TrackingConfig struct {
	Source    string  `json:"source"`
	Recording string  `json:"recording,omitempty"` // JSON-lines frames for the replay source
	Loop      bool    `json:"loop,omitempty"`
	Scale     float64 `json:"scale"` // meters to geometry units
}

// ArmConfig holds configuration for the leader arm tracking source
type ArmConfig struct {
	Port        string            `json:"port"`
	Point       string            `json:"point"`
	IntervalMs  int               `json:"interval_ms"`
	Calibration robot.Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return a.Calibration.Complete()
}

// DefaultAxis is the filter applied to a tracked point in millimeters.
func DefaultAxis(origin, limit float64) filter.AxisConfig {
	return filter.AxisConfig{
		FilterThreshold: 5000,
		SampleThreshold: 10,
		Sensitivity:     1,
		Gain:            0.5,
		Origin:          origin,
		Min:             -limit,
		Max:             limit,
	}
}

// DefaultChannel returns a streaming channel on device that follows the right hand.
func DefaultChannel(name, device string) channel.Config {
	reach := kinematics.DefaultGeometry().Reach()
	return channel.Config{
		Name: name,
		Link: link.DefaultConfig(device),
		Filter: filter.Config{
			X: DefaultAxis(300, reach),
			Y: DefaultAxis(200, reach),
			Z: DefaultAxis(0, reach),
		},
		Cooldown: 10,
		Point:    tracking.RightHand.String(),
	}
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Hz:       30,
		Gamma:    0,
		Geometry: kinematics.DefaultGeometry(),
		Tracking: TrackingConfig{Source: SourceArm, Scale: 1000},
		Leader:   ArmConfig{Point: tracking.RightHand.String(), IntervalMs: 20},
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Hz <= 0 {
		c.Hz = d.Hz
	}
	if c.Geometry == (kinematics.Geometry{}) {
		c.Geometry = d.Geometry
	}
	if c.Tracking.Source == "" {
		c.Tracking.Source = d.Tracking.Source
	}
	if c.Tracking.Scale == 0 {
		c.Tracking.Scale = d.Tracking.Scale
	}
	if c.Leader.Point == "" {
		c.Leader.Point = d.Leader.Point
	}
	if c.Leader.IntervalMs <= 0 {
		c.Leader.IntervalMs = d.Leader.IntervalMs
	}
	line := link.DefaultConfig("")
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Link.Baud == 0 {
			ch.Link.Baud = line.Baud
		}
		if ch.Link.ReadTimeoutMs == 0 {
			ch.Link.ReadTimeoutMs = line.ReadTimeoutMs
		}
		if ch.Link.WriteTimeoutMs == 0 {
			ch.Link.WriteTimeoutMs = line.WriteTimeoutMs
		}
		if ch.Point == "" {
			ch.Point = tracking.RightHand.String()
		}
	}
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Hz <= 0 {
		errs = append(errs, fmt.Errorf("hz must be positive, got %d", c.Hz))
	}
	if err := c.Geometry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("geometry: %w", err))
	}
	switch c.Tracking.Source {
	case SourceArm:
		if _, err := tracking.ParseBodyPoint(c.Leader.Point); err != nil {
			errs = append(errs, fmt.Errorf("leader: %w", err))
		}
	case SourceReplay:
		if c.Tracking.Recording == "" {
			errs = append(errs, errors.New("tracking: replay source needs a recording"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracking: unknown source %q", c.Tracking.Source))
	}
	if c.Tracking.Scale <= 0 {
		errs = append(errs, errors.New("tracking: scale must be positive"))
	}

	names := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if names[ch.Name] {
			errs = append(errs, fmt.Errorf("duplicate channel %s", ch.Name))
		}
		names[ch.Name] = true
		if _, err := tracking.ParseBodyPoint(ch.Point); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Channel returns the configuration of the named channel.
func (c *Config) Channel(name string) (channel.Config, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return channel.Config{}, false
}

// SetChannel replaces the channel with the same name or appends it.
func (c *Config) SetChannel(ch channel.Config) {
	for i := range c.Channels {
		if c.Channels[i].Name == ch.Name {
			c.Channels[i] = ch
			return
		}
	}
	c.Channels = append(c.Channels, ch)
}

// Load loads configuration from path and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save saves configuration to path
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
