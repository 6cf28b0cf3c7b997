// Package teleop runs the control cycle: it polls the tracking source, filters
// each channel's body point, solves the target and hands reachable targets to
// the channel. The first channel's solution drives the simulated arm.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang/geo/r3"

	"github.com/kxrobot/kxr/pkg/channel"
	"github.com/kxrobot/kxr/pkg/filter"
	"github.com/kxrobot/kxr/pkg/kinematics"
	"github.com/kxrobot/kxr/pkg/tracking"
)

// ChannelState is a snapshot of one channel after a cycle.
type ChannelState struct {
	Name     string
	Point    tracking.BodyPoint
	Open     bool
	Mode     channel.Mode
	Cooldown int
	Accepted int
	Target   r3.Vector
	Filter   filter.State
	SolveErr error  // target not reachable, no move is written
	Sent     string // line written this cycle, empty if none
}

// State represents the outcome of one control cycle.
type State struct {
	Timestamp time.Time
	Cycle     uint64
	Stale     bool // no new frame, the previous one was reused
	Tracked   bool // a tracked subject was found
	Channels  []ChannelState

	// Simulated arm for the first channel's target.
	Pose     kinematics.Pose
	Angles   kinematics.JointAngles
	Chain    []r3.Vector
	SolveErr error
}

// Config holds configuration for the controller.
type Config struct {
	Source   tracking.Source
	Solver   *kinematics.Solver
	Channels []*channel.Channel
	Hz       int
	Scale    float64 // source length unit to geometry unit
	Gamma    float64 // tool angle of the simulated arm
	Logger   *log.Logger
}

type binding struct {
	ch       *channel.Channel
	point    tracking.BodyPoint
	target   r3.Vector
	angles   kinematics.JointAngles
	solveErr error
	skipping bool
}

// Controller manages the control loop. Only the loop goroutine touches the
// channels once Start is running; operator actions go through Submit.
type Controller struct {
	source   tracking.Source
	solver   *kinematics.Solver
	bindings []*binding
	hz       int
	scale    float64
	gamma    float64
	logger   *log.Logger

	frame tracking.Frame
	cycle uint64

	mu      sync.RWMutex
	running bool
	reqCh   chan Request
	stateCh chan State
	logCh   chan string
}

// NewController creates a new controller. Channels are opened by Start.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, errors.New("no tracking source")
	}
	if cfg.Solver == nil {
		return nil, errors.New("no solver")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 30
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	names := make(map[string]bool, len(cfg.Channels))
	bindings := make([]*binding, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if names[ch.Name()] {
			return nil, fmt.Errorf("duplicate channel %s", ch.Name())
		}
		names[ch.Name()] = true

		p, err := tracking.ParseBodyPoint(ch.Config().Point)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
		bindings = append(bindings, &binding{ch: ch, point: p})
	}

	return &Controller{
		source:   cfg.Source,
		solver:   cfg.Solver,
		bindings: bindings,
		hz:       cfg.Hz,
		scale:    cfg.Scale,
		gamma:    cfg.Gamma,
		logger:   cfg.Logger,
		reqCh:    make(chan Request, 16),
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Channels returns the names of the controlled channels in order.
func (c *Controller) Channels() []string {
	names := make([]string, len(c.bindings))
	for i, b := range c.bindings {
		names[i] = b.ch.Name()
	}
	return names
}

// Running reports whether the control loop is active.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Controller) log(level log.Level, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Log(level, text)

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// starter is implemented by sources with a background reader.
type starter interface {
	Start(ctx context.Context)
	Stop()
}

// Start runs the control loop until ctx is done. Channels that fail to open
// stay closed and are reported in the log.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if s, ok := c.source.(starter); ok {
		s.Start(ctx)
		defer s.Stop()
	}

	for _, b := range c.bindings {
		c.open(b.ch)
	}

	c.log(log.InfoLevel, "Control loop started at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step()
		}
	}
}

func (c *Controller) open(ch *channel.Channel) {
	if err := ch.Open(); err != nil {
		c.log(log.ErrorLevel, "Open failed: %v", err)
		return
	}
	c.log(log.InfoLevel, "Channel %s: opened %s", ch.Name(), ch.Config().Link.Device)
}

func (c *Controller) step() {
	c.drainRequests()

	f, fresh := c.source.Poll()
	if fresh {
		c.frame = f
	}
	subject, err := c.frame.FirstTracked()

	c.cycle++
	state := State{
		Timestamp: time.Now(),
		Cycle:     c.cycle,
		Stale:     !fresh,
		Tracked:   err == nil,
		Channels:  make([]ChannelState, 0, len(c.bindings)),
	}

	for _, b := range c.bindings {
		accepted := 0
		if err == nil {
			if p := subject.Point(b.point); p.Confidence != tracking.NotTracked {
				res := b.ch.Filter(p.Position.Mul(c.scale))
				b.target, accepted = res.Target, res.Accepted
			}
		}

		cs := ChannelState{
			Name:     b.ch.Name(),
			Point:    b.point,
			Accepted: accepted,
			Target:   b.target,
		}
		if c.solve(b, accepted) != nil {
			cs.SolveErr = b.solveErr
			// Count the cooldown down without writing.
			accepted = 0
		}
		sent, werr := b.ch.Tick(b.target, accepted)
		if werr != nil {
			c.log(log.ErrorLevel, "Write error: %v", werr)
		}
		if sent != nil {
			cs.Sent = sent.Line()
		}
		cs.Open = b.ch.IsOpen()
		cs.Mode = b.ch.Mode()
		cs.Cooldown = b.ch.Cooldown()
		cs.Filter = b.ch.FilterState()
		state.Channels = append(state.Channels, cs)
	}

	if len(c.bindings) > 0 {
		c.simulate(&state, c.bindings[0])
	}

	c.sendState(state)
}

// solve computes the joint angles for the binding's target. The first skipped
// move of a run of unreachable targets is logged.
func (c *Controller) solve(b *binding, accepted int) error {
	pose := kinematics.Pose{X: b.target.X, Y: b.target.Y, Z: b.target.Z, Gamma: c.gamma}
	b.angles, b.solveErr = c.solver.Solve(pose)
	switch {
	case b.solveErr != nil && accepted > 0 && !b.skipping:
		c.log(log.WarnLevel, "Channel %s: target out of reach, skipping moves: %v", b.ch.Name(), b.solveErr)
		b.skipping = true
	case b.solveErr == nil && b.skipping:
		c.log(log.InfoLevel, "Channel %s: target back in reach", b.ch.Name())
		b.skipping = false
	}
	return b.solveErr
}

// simulate fills in the on-screen arm from the binding's last solution.
func (c *Controller) simulate(state *State, b *binding) {
	if b.solveErr != nil {
		state.SolveErr = b.solveErr
		state.Pose = kinematics.Pose{X: b.target.X, Y: b.target.Y, Z: b.target.Z, Gamma: c.gamma}
		return
	}
	state.Angles = b.angles
	state.Pose = c.solver.Forward(b.angles)
	state.Chain = c.solver.Chain(b.angles)
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.drainRequests()
	for _, b := range c.bindings {
		if err := b.ch.Close(); err != nil {
			c.log(log.WarnLevel, "Warning: %v", err)
		}
	}
	c.log(log.InfoLevel, "Control loop stopped")
}
