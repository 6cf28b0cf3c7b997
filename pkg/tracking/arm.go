package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/kxrobot/kxr/pkg/kinematics"
)

// JointReader reads the joint angles of a physical arm.
type JointReader interface {
	ReadAngles(ctx context.Context) (kinematics.JointAngles, error)
}

// ArmConfig configures an ArmSource.
type ArmConfig struct {
	Point    BodyPoint     // body point the tool position is published as
	Interval time.Duration // read period
	PerMeter float64       // geometry length units per meter
}

// ArmSource tracks a hand-guided leader arm. A background goroutine reads the
// joint angles, runs forward kinematics, and publishes the tool point as a
// single tracked subject.
type ArmSource struct {
	reader JointReader
	solver *kinematics.Solver
	cfg    ArmConfig

	frames chan Frame

	mu      sync.Mutex
	err     error
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewArmSource returns a stopped source. Zero config fields take defaults:
// 50ms interval and millimeter geometry.
func NewArmSource(reader JointReader, solver *kinematics.Solver, cfg ArmConfig) *ArmSource {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	if cfg.PerMeter <= 0 {
		cfg.PerMeter = 1000
	}
	return &ArmSource{
		reader: reader,
		solver: solver,
		cfg:    cfg,
		frames: make(chan Frame, 1),
	}
}

// Start launches the reader goroutine. It is a no-op when already running.
func (s *ArmSource) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)
}

// Stop ends the reader goroutine and waits for it.
func (s *ArmSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

// Err returns the last read error, or nil after a successful read.
func (s *ArmSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Poll returns the newest published frame.
func (s *ArmSource) Poll() (Frame, bool) {
	select {
	case f := <-s.frames:
		return f, true
	default:
		return Frame{}, false
	}
}

func (s *ArmSource) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *ArmSource) sample(ctx context.Context) {
	a, err := s.reader.ReadAngles(ctx)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if err != nil {
		return
	}

	tool := s.solver.Forward(a)
	pos := tool.Position().Mul(1 / s.cfg.PerMeter)
	s.publish(Frame{
		Timestamp: time.Now(),
		Subjects: []Subject{{
			ID:         1,
			Confidence: Tracked,
			Points: map[BodyPoint]Point{
				s.cfg.Point: {Position: pos, Confidence: Tracked},
			},
		}},
	})
}

// publish replaces any unread frame so Poll always sees the latest.
func (s *ArmSource) publish(f Frame) {
	select {
	case s.frames <- f:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- f:
		default:
		}
	}
}
