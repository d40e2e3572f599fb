package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/handwheel/internal/gesture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8765", cfg.Server.Addr())
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 2*time.Second, cfg.Tracking.HandTimeout)
	assert.Equal(t, 0.5, cfg.Tracking.MaxStep)
	assert.Equal(t, 0.1, cfg.Tracking.RecenterStep)
	assert.Equal(t, gesture.ModeFingers, cfg.Gesture.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Gesture.ReleaseDelay)
	assert.Equal(t, 3, cfg.Gesture.Interval)
	assert.Equal(t, 10*time.Millisecond, cfg.Loop.Yield)

	_, ok := cfg.MQTTOptions()
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handwheel.yaml")
	data := `
server:
  port: 9000
tracking:
  max_step: 0.25
  hand_timeout: 1500ms
gesture:
  mode: classifier
  model: /models/gesture_recognizer.task
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Tracking.MaxStep)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracking.HandTimeout)
	assert.Equal(t, 0.1, cfg.Tracking.RecenterStep)
	assert.Equal(t, gesture.ModeClassifier, cfg.Gesture.Mode)

	mqtt, ok := cfg.MQTTOptions()
	require.True(t, ok)
	assert.Equal(t, "tcp://localhost:1883", mqtt.Broker)
	assert.Equal(t, "handwheel/steering", mqtt.Topic)
	assert.EqualValues(t, 1, mqtt.QoS)

	appCfg := cfg.App()
	assert.Equal(t, 0.25, appCfg.Loop.MaxStep)
	assert.Equal(t, gesture.ModeClassifier, appCfg.Loop.Mode)
	assert.Equal(t, "/models/gesture_recognizer.task", appCfg.GestureModel)
	assert.Equal(t, 640, appCfg.Camera.Width)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"camera", func(c *Config) { c.Camera.Width = 0 }},
		{"max step", func(c *Config) { c.Tracking.MaxStep = 0 }},
		{"recenter step", func(c *Config) { c.Tracking.RecenterStep = -1 }},
		{"mode", func(c *Config) { c.Gesture.Mode = "wave" }},
		{"interval", func(c *Config) { c.Gesture.Interval = 0 }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"mqtt topic", func(c *Config) { c.MQTT.Broker = "tcp://x:1883"; c.MQTT.Topic = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplySettings(t *testing.T) {
	cfg := Default()
	err := cfg.ApplySettings(map[string]string{
		"tracking.max_step":     "0.3",
		"gesture.release_delay": "750ms",
		"gesture.interval":      "5",
		"tracking.require_fist": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Tracking.MaxStep)
	assert.True(t, cfg.Tracking.RequireFist)
	assert.True(t, cfg.App().Loop.RequireFist)
	assert.Equal(t, 750*time.Millisecond, cfg.Gesture.ReleaseDelay)
	assert.Equal(t, 5, cfg.Gesture.Interval)

	before := cfg
	assert.ErrorIs(t, cfg.ApplySettings(map[string]string{"server.port": "1"}), ErrUnknownSetting)
	assert.Error(t, cfg.ApplySettings(map[string]string{"tracking.max_step": "fast"}))
	assert.Error(t, cfg.ApplySettings(map[string]string{"tracking.max_step": "-1"}))
	assert.Error(t, cfg.ApplySettings(map[string]string{"tracking.require_fist": "sometimes"}))
	assert.Equal(t, before, cfg)
}

func TestSettingKeys(t *testing.T) {
	keys := SettingKeys()
	assert.Contains(t, keys, "tracking.max_step")
	assert.Contains(t, keys, "gesture.mode")
	assert.IsIncreasing(t, keys)
}
