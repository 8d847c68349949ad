package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eqtlab/bank-syncer/syncer"
)

// nolint:lll
type NtfyConfig struct {
	Enabled bool          `env:"ENABLED, default=false"`
	Server  string        `env:"SERVER, default=https://ntfy.sh"`
	Topic   string        `env:"TOPIC"`
	Timeout time.Duration `env:"TIMEOUT, default=30s"`
}

// NtfySink sends a short plain-text push notification per transaction.
type NtfySink struct {
	url  string
	http *http.Client
}

func NewNtfySink(cfg NtfyConfig) (*NtfySink, error) {
	if cfg.Topic == "" {
		return nil, errors.New("ntfy topic is required")
	}

	return &NtfySink{
		url:  strings.TrimSuffix(cfg.Server, "/") + "/" + cfg.Topic,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *NtfySink) Name() string { return "ntfy" }

func (s *NtfySink) Process(ctx context.Context, event syncer.Event) error {
	title := fmt.Sprintf("New transaction on %s", event.Account.Name)
	message := fmt.Sprintf(
		"Amount: %s %s\nDescription: %s",
		event.Transaction.Value.String(),
		event.Account.Currency,
		event.Transaction.Wording,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ntfy responded %d: %s", resp.StatusCode, body)
	}

	return nil
}
