package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kxrobot/kxr/pkg/channel"
)

type SendCommand struct {
	Channel string `long:"channel" short:"n" description:"Channel name (default: the only configured channel)"`
	Enable  bool   `long:"enable" description:"Enable the stepper drivers (M17)"`
	Disable bool   `long:"disable" description:"Disable the stepper drivers (M18)"`

	Args struct {
		Text []string `positional-arg-name:"command" description:"Raw command text, sent verbatim"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	name := c.Channel
	if name == "" {
		if len(cfg.Channels) != 1 {
			return errors.New("several channels configured, pick one with --channel")
		}
		name = cfg.Channels[0].Name
	}
	cc, ok := cfg.Channel(name)
	if !ok {
		return fmt.Errorf("unknown channel %q", name)
	}

	text := strings.TrimSpace(strings.Join(c.Args.Text, " "))
	if !c.Enable && !c.Disable && text == "" {
		return errors.New("nothing to send: give a command, --enable or --disable")
	}

	ch := channel.New(cc, nil)
	ch.SetMode(channel.Discrete)
	if err := ch.Open(); err != nil {
		return err
	}
	defer ch.Close()

	if c.Enable {
		if err := ch.Enable(); err != nil {
			return err
		}
		logger.Info("drivers enabled", "channel", name)
	}
	if text != "" {
		if err := ch.SendRaw(text); err != nil {
			return err
		}
		logger.Info("sent", "channel", name, "line", text)
	}
	if c.Disable {
		if err := ch.Disable(); err != nil {
			return err
		}
		logger.Info("drivers disabled", "channel", name)
	}
	return nil
}
