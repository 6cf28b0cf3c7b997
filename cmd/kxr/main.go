package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"

	"github.com/kxrobot/kxr/pkg/config"
)

type Options struct {
	ConfigFile string `long:"config" short:"c" default:"kxr.json" description:"Configuration file"`
	LogLevel   string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`

	Setup       SetupCommand       `command:"setup" description:"Assign serial ports to channels and calibrate the leader arm"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Stream tracked motion to the arms"`
	Send        SendCommand        `command:"send" description:"Send one command to a channel"`
	Solve       SolveCommand       `command:"solve" description:"Solve a target pose and print the joint angles"`
	Ports       PortsCommand       `command:"ports" description:"List serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "kxr - body-tracked teleoperation of stepper-driven arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// newLogger returns a logger at the configured level writing to w.
func newLogger(w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "kxr",
	})
	if level, err := log.ParseLevel(opts.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// loadConfig reads the configuration file and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		if !config.Exists(opts.ConfigFile) {
			return nil, fmt.Errorf("no configuration found at %s, run 'kxr setup' first", opts.ConfigFile)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", opts.ConfigFile, err)
	}
	return cfg, nil
}
