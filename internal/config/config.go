// Package config loads handwheel's YAML configuration and applies persisted tuning
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ayusman/handwheel/internal/app"
	"github.com/ayusman/handwheel/internal/capture"
	"github.com/ayusman/handwheel/internal/detector"
	"github.com/ayusman/handwheel/internal/gesture"
	"github.com/ayusman/handwheel/internal/hub"
	"github.com/ayusman/handwheel/internal/log"
	"github.com/ayusman/handwheel/internal/steering"
	"gopkg.in/yaml.v3"
)

// ErrUnknownSetting is returned for override keys that do not name a tunable.
var ErrUnknownSetting = errors.New("unknown setting")

// ServerConfig is the websocket and API listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CameraConfig selects and sizes the capture device.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	FPS      int `yaml:"fps"`
}

// DetectorConfig tunes the MediaPipe hand landmarker.
type DetectorConfig struct {
	MaxHands        int     `yaml:"max_hands"`
	MinConfidence   float64 `yaml:"min_confidence"`
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`
	Script          string  `yaml:"script"`
}

// TrackingConfig tunes hand selection and the steering filter.
type TrackingConfig struct {
	HandTimeout  time.Duration `yaml:"hand_timeout"`
	MaxStep      float64       `yaml:"max_step"`
	RecenterStep float64       `yaml:"recenter_step"`
	// RequireFist steers only while the fist is closed; an open hand lets the wheel
	// recenter.
	RequireFist bool `yaml:"require_fist"`
}

// GestureConfig selects and tunes fist detection.
type GestureConfig struct {
	Mode         gesture.Mode  `yaml:"mode"`
	ReleaseDelay time.Duration `yaml:"release_delay"`
	Interval     int           `yaml:"interval"`
	Script       string        `yaml:"script"`
	Model        string        `yaml:"model"`
}

// HubConfig sizes the broadcast hub.
type HubConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MQTTConfig enables the MQTT bridge when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// LoopConfig paces the control loop.
type LoopConfig struct {
	Yield time.Duration `yaml:"yield"`
}

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Tracking TrackingConfig `yaml:"tracking"`
	Gesture  GestureConfig  `yaml:"gesture"`
	Loop     LoopConfig     `yaml:"loop"`
	Hub      HubConfig      `yaml:"hub"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      log.Config     `yaml:"log"`
	DataDir  string         `yaml:"data_dir"`
	Tray     bool           `yaml:"tray"`
}

// Default returns the stock configuration: websocket on localhost:8765, 640x480 capture
// from device 0, finger-heuristic fist detection.
func Default() Config {
	det := detector.DefaultConfig()
	return Config{
		Server: ServerConfig{Host: "localhost", Port: 8765},
		Camera: CameraConfig{
			Width:  capture.DefaultWidth,
			Height: capture.DefaultHeight,
			FPS:    capture.DefaultFPS,
		},
		Detector: DetectorConfig{
			MaxHands:        det.MaxHands,
			MinConfidence:   det.MinConfidence,
			MinTrackingConf: det.MinTrackingConf,
		},
		Tracking: TrackingConfig{
			HandTimeout:  steering.DefaultHandTimeout,
			MaxStep:      steering.DefaultMaxStep,
			RecenterStep: steering.DefaultRecenterStep,
		},
		Gesture: GestureConfig{
			Mode:         gesture.ModeFingers,
			ReleaseDelay: gesture.DefaultReleaseDelay,
			Interval:     app.DefaultGestureInterval,
		},
		Loop: LoopConfig{Yield: app.DefaultYield},
		Hub: HubConfig{
			QueueSize:    hub.DefaultQueueSize,
			SendBuffer:   hub.DefaultSendBuffer,
			WriteTimeout: hub.DefaultWriteTimeout,
		},
		MQTT: MQTTConfig{
			Topic:    "handwheel/steering",
			ClientID: "handwheel",
		},
		Log:     log.DefaultConfig(),
		DataDir: defaultDataDir(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".handwheel"
	}
	return filepath.Join(home, ".handwheel")
}

// Load reads path on top of Default. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case c.Camera.Width <= 0 || c.Camera.Height <= 0:
		return fmt.Errorf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height)
	case c.Tracking.HandTimeout <= 0:
		return errors.New("tracking.hand_timeout must be positive")
	case c.Tracking.MaxStep <= 0:
		return errors.New("tracking.max_step must be positive")
	case c.Tracking.RecenterStep <= 0:
		return errors.New("tracking.recenter_step must be positive")
	case !c.Gesture.Mode.Valid():
		return fmt.Errorf("gesture.mode %q must be %q or %q", c.Gesture.Mode, gesture.ModeFingers, gesture.ModeClassifier)
	case c.Gesture.ReleaseDelay <= 0:
		return errors.New("gesture.release_delay must be positive")
	case c.Gesture.Interval < 1:
		return errors.New("gesture.interval must be at least 1")
	case c.Loop.Yield < 0:
		return errors.New("loop.yield must not be negative")
	case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
	case c.MQTT.Broker != "" && c.MQTT.Topic == "":
		return errors.New("mqtt.topic is required when mqtt.broker is set")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// setters maps override keys to the field they tune.
var setters = map[string]func(c *Config, v string) error{
	"tracking.hand_timeout": func(c *Config, v string) error {
		return setDuration(&c.Tracking.HandTimeout, v)
	},
	"tracking.max_step": func(c *Config, v string) error {
		return setFloat(&c.Tracking.MaxStep, v)
	},
	"tracking.recenter_step": func(c *Config, v string) error {
		return setFloat(&c.Tracking.RecenterStep, v)
	},
	"gesture.mode": func(c *Config, v string) error {
		c.Gesture.Mode = gesture.Mode(v)
		return nil
	},
	"gesture.release_delay": func(c *Config, v string) error {
		return setDuration(&c.Gesture.ReleaseDelay, v)
	},
	"gesture.interval": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Gesture.Interval = n
		return nil
	},
	"tracking.require_fist": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Tracking.RequireFist = b
		return nil
	},
	"loop.yield": func(c *Config, v string) error {
		return setDuration(&c.Loop.Yield, v)
	},
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// SettingKeys lists the keys accepted by ApplySettings, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplySettings applies persisted overrides and validates the result. c is left
// untouched when an override is rejected.
func (c *Config) ApplySettings(settings map[string]string) error {
	next := *c
	for key, value := range settings {
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		if err := set(&next, value); err != nil {
			return fmt.Errorf("setting %s=%q: %w", key, value, err)
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// App returns the control loop configuration.
func (c Config) App() app.Config {
	return app.Config{
		Camera: capture.Options{
			DeviceID: c.Camera.DeviceID,
			Width:    c.Camera.Width,
			Height:   c.Camera.Height,
			FPS:      c.Camera.FPS,
		},
		Detector: detector.Config{
			MaxHands:        c.Detector.MaxHands,
			MinConfidence:   c.Detector.MinConfidence,
			MinTrackingConf: c.Detector.MinTrackingConf,
			Script:          c.Detector.Script,
		},
		Loop: app.LoopConfig{
			HandTimeout:  c.Tracking.HandTimeout,
			MaxStep:      c.Tracking.MaxStep,
			RecenterStep: c.Tracking.RecenterStep,
			RequireFist:  c.Tracking.RequireFist,
			Mode:         c.Gesture.Mode,
			ReleaseDelay: c.Gesture.ReleaseDelay,
			Interval:     c.Gesture.Interval,
			Yield:        c.Loop.Yield,
		},
		GestureScript: c.Gesture.Script,
		GestureModel:  c.Gesture.Model,
	}
}

// HubOptions returns the hub sizing.
func (c Config) HubOptions() hub.Config {
	return hub.Config{
		QueueSize:    c.Hub.QueueSize,
		SendBuffer:   c.Hub.SendBuffer,
		WriteTimeout: c.Hub.WriteTimeout,
	}
}

// MQTTOptions returns the bridge settings; ok is false when no broker is configured.
func (c Config) MQTTOptions() (hub.MQTTConfig, bool) {
	if c.MQTT.Broker == "" {
		return hub.MQTTConfig{}, false
	}
	return hub.MQTTConfig{
		Broker:   c.MQTT.Broker,
		Topic:    c.MQTT.Topic,
		ClientID: c.MQTT.ClientID,
		QoS:      byte(c.MQTT.QoS),
		Retained: c.MQTT.Retained,
		Timeout:  c.Hub.WriteTimeout,
	}, true
}

// DatabasePath is the settings database inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "handwheel.db")
}
