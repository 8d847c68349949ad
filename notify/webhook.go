package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eqtlab/bank-syncer/syncer"
)

// nolint:lll
type WebhookConfig struct {
	Enabled bool          `env:"ENABLED, default=false"`
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT, default=30s"`
}

// WebhookSink POSTs the event JSON to a fixed URL.
type WebhookSink struct {
	url  string
	http *http.Client
}

func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}

	return &WebhookSink{
		url:  cfg.URL,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Process(ctx context.Context, event syncer.Event) error {
	payload, err := payloadJSON(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook responded %d: %s", resp.StatusCode, body)
	}

	return nil
}
