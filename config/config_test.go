package config

import (
	"log/slog"
	"testing"

	"github.com/DaniruKun/dronetracker/imgproc"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
	cal := Default().Calibration()
	if cal.Target != imgproc.FullRange() || cal.Drone != imgproc.FullRange() {
		t.Errorf("default calibration should accept every colour, got %+v", cal)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DRONETRACK_DEVICE", "2")
	t.Setenv("DRONETRACK_CHANNEL", "tcp:127.0.0.1:9000")
	t.Setenv("DRONETRACK_LISTEN", "true")
	t.Setenv("DRONETRACK_MIN_AREA", "50")
	t.Setenv("DRONETRACK_LOST_POLICY", "hold")
	t.Setenv("DRONETRACK_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DRONETRACK_TARGET_HSV", "0,10,100,255,100,255")
	t.Setenv("DRONETRACK_KERNEL_SIZE", "not-a-number")

	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if c.Device != 2 || c.Channel != "tcp:127.0.0.1:9000" || !c.Listen || c.MinArea != 50 || c.LostPolicy != "hold" {
		t.Errorf("unexpected config: %+v", c)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers: %v", c.KafkaBrokers)
	}
	if c.KernelSize != Default().KernelSize {
		t.Errorf("unparsable values keep the default, got %d", c.KernelSize)
	}
	want := imgproc.HSVRange{HueMin: 0, HueMax: 10, SatMin: 100, SatMax: 255, ValMin: 100, ValMax: 255}
	if c.Target != want {
		t.Errorf("target: got %+v", c.Target)
	}
	if c.Drone != imgproc.FullRange() {
		t.Errorf("drone: got %+v", c.Drone)
	}
}

func TestFromEnv_BadRange(t *testing.T) {
	t.Setenv("DRONETRACK_DRONE_HSV", "1,2,3")
	if _, err := FromEnv(); err == nil {
		t.Error("expected error for a short range")
	}
}

func TestValidate(t *testing.T) {
	var tests = []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative iterations", func(c *Config) { c.MorphIterations = -1 }},
		{"zero kernel", func(c *Config) { c.KernelSize = 0 }},
		{"inverted area", func(c *Config) { c.MinArea, c.MaxArea = 100, 10 }},
		{"negative area", func(c *Config) { c.MinArea = -1 }},
		{"lost policy", func(c *Config) { c.LostPolicy = "panic" }},
		{"mode", func(c *Config) { c.Mode = "orbit" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"channel", func(c *Config) { c.Channel = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	c := Default()
	c.MinArea = 100
	if err := c.Validate(); err != nil {
		t.Errorf("min area alone is valid: %v", err)
	}
}

func TestParseHSVRange(t *testing.T) {
	r, err := ParseHSVRange(" 75, 95,100,255 ,100,255")
	if err != nil {
		t.Fatal(err)
	}
	if r.HueMin != 75 || r.HueMax != 95 || r.ValMax != 255 {
		t.Errorf("got %+v", r)
	}

	for _, bad := range []string{"", "1,2,3,4,5", "1,2,3,4,5,x", "0,256,0,255,0,255", "-1,2,3,4,5,6"} {
		if _, err := ParseHSVRange(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("%q: got %v, %v", in, got, err)
		}
	}
}
