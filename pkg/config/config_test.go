package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kxrobot/kxr/pkg/robot"
)

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	if Exists(path) {
		t.Fatal("Exists before Save")
	}

	cfg := Default()
	cfg.SetChannel(DefaultChannel("left", "/dev/ttyUSB0"))
	cfg.SetChannel(DefaultChannel("right", "/dev/ttyUSB1"))
	cfg.Leader.Port = "/dev/ttyACM0"
	cfg.Leader.Calibration = robot.Calibration{
		robot.Base:     {ID: 1, HomingOffset: 2048},
		robot.Shoulder: {ID: 2, HomingOffset: 1024},
		robot.Elbow:    {ID: 3, HomingOffset: 2048, DriveMode: 1},
		robot.Wrist:    {ID: 4, HomingOffset: 2048},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Fatal("Exists after Save = false")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(got.Channels))
	}
	right, ok := got.Channel("right")
	if !ok || right.Link.Device != "/dev/ttyUSB1" {
		t.Errorf("right channel = %+v", right)
	}
	if !got.Leader.IsCalibrated() {
		t.Error("leader calibration lost")
	}
	if got.Leader.Calibration[robot.Elbow].DriveMode != 1 {
		t.Error("elbow drive mode lost")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	data := `{"channels":[{"name":"arm","link":{"device":"COM3"},"filter":{
		"x":{"filter_threshold":1000,"max":10},
		"y":{"filter_threshold":1000,"max":10},
		"z":{"filter_threshold":1000,"max":10}}}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hz != 30 || cfg.Tracking.Scale != 1000 || cfg.Tracking.Source != SourceArm {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Geometry.L1 != 300 {
		t.Errorf("geometry L1 = %v, want default 300", cfg.Geometry.L1)
	}
	ch := cfg.Channels[0]
	if ch.Link.Baud != 9600 || ch.Link.ReadTimeoutMs != 50 || ch.Point != "right_hand" {
		t.Errorf("channel defaults not applied: %+v", ch)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("malformed JSON should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad hz", func(c *Config) { c.Hz = 0 }, "hz"},
		{"bad geometry", func(c *Config) { c.Geometry.L2 = -1 }, "geometry"},
		{"unknown source", func(c *Config) { c.Tracking.Source = "kinect" }, "unknown source"},
		{"replay without recording", func(c *Config) { c.Tracking.Source = SourceReplay }, "recording"},
		{"bad leader point", func(c *Config) { c.Leader.Point = "knee" }, "leader"},
		{"duplicate channel", func(c *Config) { c.Channels = append(c.Channels, c.Channels[0]) }, "duplicate"},
		{"bad channel point", func(c *Config) { c.Channels[0].Point = "tail" }, "channel arm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetChannel(DefaultChannel("arm", "/dev/ttyUSB0"))
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestSetChannel_Replaces(t *testing.T) {
	cfg := Default()
	cfg.SetChannel(DefaultChannel("arm", "a"))
	cfg.SetChannel(DefaultChannel("arm", "b"))
	if len(cfg.Channels) != 1 || cfg.Channels[0].Link.Device != "b" {
		t.Errorf("channels = %+v", cfg.Channels)
	}
	if _, ok := cfg.Channel("other"); ok {
		t.Error("Channel(other) should not be found")
	}
}
