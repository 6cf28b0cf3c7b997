package link

import (
	"fmt"
	"time"
)

// timedPort bounds every write by a timeout. The serial drivers only time out reads.
type timedPort struct {
	Port
	timeout time.Duration
	slot    chan struct{} // held while a write is on the line
}

type writeResult struct {
	n   int
	err error
}

// WithWriteTimeout wraps p so that a write blocked longer than timeout returns
// ErrWriteTimeout. A write still stuck on the line makes the next one fail fast.
// A zero timeout returns p unchanged.
func WithWriteTimeout(p Port, timeout time.Duration) Port {
	if timeout <= 0 {
		return p
	}
	return &timedPort{Port: p, timeout: timeout, slot: make(chan struct{}, 1)}
}

func (p *timedPort) Write(b []byte) (int, error) {
	select {
	case p.slot <- struct{}{}:
	default:
		return 0, fmt.Errorf("%w: previous write still pending", ErrWriteTimeout)
	}

	buf := append([]byte(nil), b...)
	done := make(chan writeResult, 1)
	go func() {
		n, err := p.Port.Write(buf)
		<-p.slot
		done <- writeResult{n: n, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, fmt.Errorf("%w after %s", ErrWriteTimeout, p.timeout)
	}
}
