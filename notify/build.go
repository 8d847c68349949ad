package notify

import (
	"fmt"

	"go.uber.org/zap"
)

// BuildSinks constructs every enabled sink. A sink enabled with incomplete
// parameters is a configuration error and fails startup.
func BuildSinks(cfg Config, logger *zap.Logger) ([]Sink, error) {
	var sinks []Sink

	if cfg.MQTT.Enabled {
		sink, err := NewMQTTSink(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Webhook.Enabled {
		sink, err := NewWebhookSink(cfg.Webhook)
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Ntfy.Enabled {
		sink, err := NewNtfySink(cfg.Ntfy)
		if err != nil {
			return nil, fmt.Errorf("ntfy sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Email.Enabled {
		sink, err := NewEmailSink(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	for _, sink := range sinks {
		logger.Info("notification sink enabled", zap.String("sink", sink.Name()))
	}

	return sinks, nil
}
