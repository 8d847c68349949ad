package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/eqtlab/bank-syncer/syncer"
)

const publishTimeout = 10 * time.Second

// nolint:lll
type MQTTConfig struct {
	Enabled  bool   `env:"ENABLED, default=false"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT, default=1883"`
	Topic    string `env:"TOPIC"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	QoS      uint8  `env:"QOS, default=1"`
}

// MQTTSink publishes the full event JSON to one broker topic. Reconnects
// after broker restarts are handled by the paho client.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Host == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt host and topic are required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("bank-syncer").
		SetAutoReconnect(true).
		SetConnectTimeout(publishTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connect mqtt broker: timeout after %s", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", err)
	}

	return &MQTTSink{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
	}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Process(ctx context.Context, event syncer.Event) error {
	payload, err := payloadJSON(event)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout after %s", s.topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}

	return nil
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(uint(publishTimeout.Milliseconds()))
}
