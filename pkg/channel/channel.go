// Package channel rate-limits and serializes motion for one arm on one serial line.
package channel

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/kxrobot/kxr/pkg/filter"
	"github.com/kxrobot/kxr/pkg/gcode"
	"github.com/kxrobot/kxr/pkg/link"
)

// ErrChannelClosed is returned for any write on a channel with no open port.
var ErrChannelClosed = errors.New("channel closed")

// Mode selects between streaming filtered motion and operator-only sends.
type Mode int

const (
	Streaming Mode = iota
	Discrete
)

func (m Mode) String() string {
	if m == Discrete {
		return "discrete"
	}
	return "streaming"
}

// Config holds configuration for one channel.
type Config struct {
	Name          string        `json:"name"`
	Link          link.Config   `json:"link"`
	Filter        filter.Config `json:"filter"`
	Cooldown      int           `json:"cooldown"` // cycles between emitted moves
	SpeedOverride bool          `json:"speed_override,omitempty"`
	FeedRate      int           `json:"feed_rate,omitempty"`
	Point         string        `json:"point"` // tracked body point
}

// Validate checks the channel configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("channel name is required")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("channel %s: cooldown must not be negative", c.Name)
	}
	if c.SpeedOverride && c.FeedRate <= 0 {
		return fmt.Errorf("channel %s: speed override needs a positive feed rate", c.Name)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("channel %s: filter: %w", c.Name, err)
	}
	return nil
}

// Channel is one physical serial link to one arm. Each channel owns its filter
// state, cooldown and port; nothing is shared between channels.
type Channel struct {
	cfg    Config
	open   link.Opener
	port   link.Port
	filter *filter.Filter
	mode   Mode

	cooldown int
	last     *gcode.Move
}

// New creates a closed channel. opener is link.Open outside of tests.
func New(cfg Config, opener link.Opener) *Channel {
	if opener == nil {
		opener = link.Open
	}
	return &Channel{
		cfg:    cfg,
		open:   opener,
		filter: filter.New(cfg.Filter),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.cfg.Name
}

// Config returns the channel configuration.
func (c *Channel) Config() Config {
	return c.cfg
}

// Open opens the serial line. On failure the channel stays closed; there is no retry.
// The filter state is reset so a reconnected arm does not inherit stale samples.
func (c *Channel) Open() error {
	if c.port != nil {
		return nil
	}
	port, err := c.open(c.cfg.Link)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.cfg.Name, err)
	}
	c.port = port
	c.filter.Reset()
	c.cooldown = 0
	return nil
}

// Close closes the serial line. Closing a closed channel is a no-op.
func (c *Channel) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return fmt.Errorf("channel %s: close: %w", c.cfg.Name, err)
	}
	return nil
}

// IsOpen reports whether the channel has an open port.
func (c *Channel) IsOpen() bool {
	return c.port != nil
}

// Mode returns the current mode.
func (c *Channel) Mode() Mode {
	return c.mode
}

// SetMode switches between streaming and discrete operation.
func (c *Channel) SetMode(m Mode) {
	c.mode = m
}

// Cooldown returns the cycles left before the next move may be emitted.
func (c *Channel) Cooldown() int {
	return c.cooldown
}

// LastMove returns the last move written, or nil.
func (c *Channel) LastMove() *gcode.Move {
	return c.last
}

// FilterState returns the channel's last accepted samples.
func (c *Channel) FilterState() filter.State {
	return c.filter.State()
}

// Filter runs a raw displacement through the channel's motion filter.
func (c *Channel) Filter(raw r3.Vector) filter.Result {
	return c.filter.Update(raw)
}

// Tick is called once per control cycle. It writes a move when at least one axis
// accepted a sample, the cooldown has expired, the channel streams and is open.
// The cooldown then counts down by one whether or not a move was written. A failed
// write leaves the cooldown at zero so the next cycle retries.
func (c *Channel) Tick(target r3.Vector, accepted int) (*gcode.Move, error) {
	var (
		sent *gcode.Move
		err  error
	)

	if accepted >= 1 && c.cooldown == 0 && c.mode == Streaming && c.port != nil {
		m := c.move(target)
		if err = c.write(m); err == nil {
			sent = &m
			c.last = sent
			c.cooldown = c.cfg.Cooldown
		}
	}

	if c.cooldown > 0 {
		c.cooldown--
	}
	return sent, err
}

func (c *Channel) move(target r3.Vector) gcode.Move {
	m := gcode.Move{
		X: int(math.Round(target.X)),
		Y: int(math.Round(target.Y)),
		Z: int(math.Round(target.Z)),
	}
	if c.cfg.SpeedOverride {
		m.Feed = c.cfg.FeedRate
	}
	return m
}

// SendRaw writes operator text verbatim, bypassing the filter and the cooldown.
func (c *Channel) SendRaw(text string) error {
	return c.write(gcode.Raw(text))
}

// Enable sends the driver enable token.
func (c *Channel) Enable() error {
	return c.write(gcode.Enable{})
}

// Disable sends the driver disable token.
func (c *Channel) Disable() error {
	return c.write(gcode.Disable{})
}

func (c *Channel) write(cmd gcode.Command) error {
	if c.port == nil {
		return fmt.Errorf("channel %s: %w", c.cfg.Name, ErrChannelClosed)
	}
	if _, err := c.port.Write(gcode.Encode(cmd)); err != nil {
		return fmt.Errorf("channel %s: write %q: %w", c.cfg.Name, cmd.Line(), err)
	}
	return nil
}
