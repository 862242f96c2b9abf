// Package config loads application settings: defaults, then DRONETRACK_* environment
// variables, then command line flags applied by cmd.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/DaniruKun/dronetracker/calibration"
	"github.com/DaniruKun/dronetracker/control"
	"github.com/DaniruKun/dronetracker/imgproc"
	"github.com/pkg/errors"
)

const envPrefix = "DRONETRACK_"

// Config holds every runtime setting
type Config struct {
	Device  int    // Camera index
	File    string // Video file, overrides Device when set
	Channel string // Command channel address, see utils.ChannelAddress
	Listen  bool   // Wait for the vehicle process to connect instead of dialing it

	HTTPAddr string // Control API bind address, empty disables it

	MorphIterations int
	KernelSize      int
	MinArea         float64 // 0 = unbounded
	MaxArea         float64 // 0 = unbounded
	LostPolicy      string  // neutral, hold or skip
	Dedupe          bool
	Smoothing       bool
	FrameRate       float64
	Mode            string // steer, target or drone

	ShowGUI bool

	MQTTBroker   string
	MQTTTopic    string
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string

	Target imgproc.HSVRange
	Drone  imgproc.HSVRange
}

// Default returns the built-in settings
func Default() Config {
	seg := imgproc.DefaultConfig()
	return Config{
		Channel:         "drone",
		HTTPAddr:        ":8080",
		MorphIterations: seg.MorphIterations,
		KernelSize:      seg.KernelSize,
		LostPolicy:      control.LostNeutral.String(),
		FrameRate:       30,
		Mode:            calibration.Steer.String(),
		MQTTTopic:       "dronetracker/telemetry",
		KafkaTopic:      "dronetracker.telemetry",
		LogLevel:        "info",
		Target:          imgproc.FullRange(),
		Drone:           imgproc.FullRange(),
	}
}

// FromEnv applies DRONETRACK_* variables on top of Default()
func FromEnv() (Config, error) {
	c := Default()

	c.Device = getEnvInt("DEVICE", c.Device)
	c.File = getEnv("FILE", c.File)
	c.Channel = getEnv("CHANNEL", c.Channel)
	c.Listen = getEnvBool("LISTEN", c.Listen)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.MorphIterations = getEnvInt("MORPH_ITERATIONS", c.MorphIterations)
	c.KernelSize = getEnvInt("KERNEL_SIZE", c.KernelSize)
	c.MinArea = getEnvFloat("MIN_AREA", c.MinArea)
	c.MaxArea = getEnvFloat("MAX_AREA", c.MaxArea)
	c.LostPolicy = getEnv("LOST_POLICY", c.LostPolicy)
	c.Dedupe = getEnvBool("DEDUPE", c.Dedupe)
	c.Smoothing = getEnvBool("SMOOTHING", c.Smoothing)
	c.FrameRate = getEnvFloat("FRAME_RATE", c.FrameRate)
	c.Mode = getEnv("MODE", c.Mode)
	c.ShowGUI = getEnvBool("GUI", c.ShowGUI)
	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = getEnv("MQTT_TOPIC", c.MQTTTopic)
	if brokers := splitAndTrim(os.Getenv(envPrefix+"KAFKA_BROKERS"), ","); len(brokers) > 0 {
		c.KafkaBrokers = brokers
	}
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	for name, r := range map[string]*imgproc.HSVRange{"TARGET_HSV": &c.Target, "DRONE_HSV": &c.Drone} {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		parsed, err := ParseHSVRange(v)
		if err != nil {
			return c, errors.Wrap(err, envPrefix+name)
		}
		*r = parsed
	}

	return c, nil
}

// Validate rejects settings the pipeline cannot run with
func (c Config) Validate() error {
	if c.MorphIterations < 0 {
		return errors.Errorf("morph iterations must not be negative: %d", c.MorphIterations)
	}
	if c.KernelSize < 1 {
		return errors.Errorf("kernel size must be at least 1: %d", c.KernelSize)
	}
	if c.MinArea < 0 || c.MaxArea < 0 {
		return errors.New("area bounds must not be negative")
	}
	if c.MinArea > 0 && c.MaxArea > 0 && c.MaxArea < c.MinArea {
		return errors.Errorf("max area %v is below min area %v", c.MaxArea, c.MinArea)
	}
	if c.FrameRate < 0 {
		return errors.Errorf("frame rate must not be negative: %v", c.FrameRate)
	}
	if _, err := control.ParseLostPolicy(c.LostPolicy); err != nil {
		return err
	}
	if _, err := calibration.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Channel) == "" {
		return errors.New("channel address must be set")
	}
	return nil
}

// Calibration is the initial calibration built from Target and Drone
func (c Config) Calibration() calibration.Calibration {
	return calibration.Calibration{Target: c.Target.Clamp(), Drone: c.Drone.Clamp()}
}

// ParseLevel maps debug, info, warn or error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log level %q", s)
	}
	return level, nil
}

// ParseHSVRange reads six comma separated bounds: hue min,max, sat min,max, val min,max
func ParseHSVRange(s string) (imgproc.HSVRange, error) {
	parts := splitAndTrim(s, ",")
	if len(parts) != 6 {
		return imgproc.HSVRange{}, errors.Errorf("want 6 comma separated values, got %d", len(parts))
	}

	var v [6]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return imgproc.HSVRange{}, errors.Wrapf(err, "value %d", i+1)
		}
		if n < 0 || n > 255 {
			return imgproc.HSVRange{}, errors.Errorf("value %d out of range 0-255: %d", i+1, n)
		}
		v[i] = n
	}

	return imgproc.HSVRange{
		HueMin: v[0], HueMax: v[1],
		SatMin: v[2], SatMax: v[3],
		ValMin: v[4], ValMax: v[5],
	}, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
