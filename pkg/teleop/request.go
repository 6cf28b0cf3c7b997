package teleop

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kxrobot/kxr/pkg/channel"
)

// Op is an operator action on a channel.
type Op int

const (
	OpOpen Op = iota
	OpClose
	OpToggleMode
	OpSendRaw
	OpEnable
	OpDisable
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpClose:
		return "close"
	case OpToggleMode:
		return "toggle mode"
	case OpSendRaw:
		return "send"
	case OpEnable:
		return "enable"
	case OpDisable:
		return "disable"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Request is an operator action queued for the control loop.
type Request struct {
	Channel string
	Op      Op
	Text    string // for OpSendRaw
}

// Submit queues r for the next cycle. It returns false when the queue is full.
func (c *Controller) Submit(r Request) bool {
	select {
	case c.reqCh <- r:
		return true
	default:
		c.log(log.WarnLevel, "Request queue full, dropped %s on %s", r.Op, r.Channel)
		return false
	}
}

func (c *Controller) drainRequests() {
	for {
		select {
		case r := <-c.reqCh:
			if err := c.handle(r); err != nil {
				c.log(log.ErrorLevel, "%s %s: %v", r.Op, r.Channel, err)
			}
		default:
			return
		}
	}
}

func (c *Controller) find(name string) (*channel.Channel, error) {
	for _, b := range c.bindings {
		if b.ch.Name() == name {
			return b.ch, nil
		}
	}
	return nil, fmt.Errorf("unknown channel %q", name)
}

func (c *Controller) handle(r Request) error {
	ch, err := c.find(r.Channel)
	if err != nil {
		return err
	}

	switch r.Op {
	case OpOpen:
		if ch.IsOpen() {
			return nil
		}
		c.open(ch)
		return nil
	case OpClose:
		if err := ch.Close(); err != nil {
			return err
		}
		c.log(log.InfoLevel, "Channel %s: closed", ch.Name())
		return nil
	case OpToggleMode:
		m := channel.Discrete
		if ch.Mode() == channel.Discrete {
			m = channel.Streaming
		}
		ch.SetMode(m)
		c.log(log.InfoLevel, "Channel %s: %s mode", ch.Name(), m)
		return nil
	case OpSendRaw:
		if err := ch.SendRaw(r.Text); err != nil {
			return err
		}
		c.log(log.InfoLevel, "Channel %s: sent %q", ch.Name(), r.Text)
		return nil
	case OpEnable:
		return ch.Enable()
	case OpDisable:
		return ch.Disable()
	}
	return fmt.Errorf("unknown request %s", r.Op)
}
