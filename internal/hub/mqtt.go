package hub

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
)

// ErrMQTTTimeout is returned when the broker does not acknowledge in time.
var ErrMQTTTimeout = errors.New("mqtt operation timed out")

// MQTTConfig describes the broker a MQTTSubscriber publishes to.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// MQTTSubscriber republishes every steering message to an MQTT topic.
type MQTTSubscriber struct {
	client  mqtt.Client
	cfg     MQTTConfig
	timeout time.Duration
	skipped *atomic.Int64
}

// DialMQTT connects to cfg.Broker.
func DialMQTT(cfg MQTTConfig) (*MQTTSubscriber, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), timeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return newMQTTSubscriber(client, cfg, timeout), nil
}

func newMQTTSubscriber(client mqtt.Client, cfg MQTTConfig, timeout time.Duration) *MQTTSubscriber {
	return &MQTTSubscriber{client: client, cfg: cfg, timeout: timeout, skipped: atomic.NewInt64(0)}
}

// Send implements Subscriber. While the client is reconnecting messages are skipped
// rather than failed, so a broker outage does not unsubscribe the bridge.
func (m *MQTTSubscriber) Send(data []byte) error {
	if !m.client.IsConnectionOpen() {
		m.skipped.Inc()
		return nil
	}
	err := wait(m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retained, data), m.timeout)
	if err != nil && !m.client.IsConnectionOpen() {
		// Connection lost mid-publish.
		m.skipped.Inc()
		return nil
	}
	return err
}

// Skipped returns how many messages were not published while disconnected.
func (m *MQTTSubscriber) Skipped() int64 {
	return m.skipped.Load()
}

// Close disconnects from the broker.
func (m *MQTTSubscriber) Close() error {
	m.client.Disconnect(250)
	return nil
}

func wait(tok mqtt.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return ErrMQTTTimeout
	}
	return tok.Error()
}
