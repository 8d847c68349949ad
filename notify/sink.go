package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eqtlab/bank-syncer/syncer"
)

// Sink is one notification target. Process reports failure but its result
// carries no data; delivery is best-effort at-most-once per event and any
// stronger guarantee belongs to the sink's own transport.
type Sink interface {
	Name() string
	Process(ctx context.Context, event syncer.Event) error
}

// nolint:lll
type Config struct {
	MQTT    MQTTConfig    `env:",prefix=MQTT_"`
	Webhook WebhookConfig `env:",prefix=WEBHOOK_"`
	Ntfy    NtfyConfig    `env:",prefix=NTFY_"`
	Email   EmailConfig   `env:",prefix=EMAIL_"`
}

// accountPayload and transactionPayload are the JSON shapes sinks emit.
type accountPayload struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Number        string `json:"number,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	Balance       string `json:"balance"`
	ComingBalance string `json:"coming"`
	Currency      string `json:"currency"`
	Disabled      bool   `json:"disabled"`
	LastUpdate    string `json:"last_update"`
}

type transactionPayload struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"id_account"`
	Date      string `json:"date"`
	Value     string `json:"value"`
	Wording   string `json:"wording"`
	Original  string `json:"original_wording,omitempty"`
}

// payloadJSON renders the event as {"transaction": ..., "account": ...}.
// The transaction part is the raw source record when available, so sinks see
// every field the source sent.
func payloadJSON(event syncer.Event) ([]byte, error) {
	var txPart json.RawMessage
	if len(event.Transaction.Raw) > 0 {
		txPart = event.Transaction.Raw
	} else {
		encoded, err := json.Marshal(transactionPayload{
			ID:        event.Transaction.ID,
			AccountID: event.Transaction.AccountID,
			Date:      event.Transaction.Date.Format(time.DateOnly),
			Value:     event.Transaction.Value.String(),
			Wording:   event.Transaction.Wording,
			Original:  event.Transaction.Original,
		})
		if err != nil {
			return nil, fmt.Errorf("encode transaction: %w", err)
		}
		txPart = encoded
	}

	payload := map[string]any{
		"transaction": txPart,
		"account": accountPayload{
			ID:            event.Account.ID,
			Name:          event.Account.Name,
			Number:        event.Account.Number,
			IBAN:          event.Account.IBAN,
			Balance:       event.Account.Balance.String(),
			ComingBalance: event.Account.ComingBalance.String(),
			Currency:      event.Account.Currency,
			Disabled:      event.Account.Disabled,
			LastUpdate:    event.Account.LastUpdate.Format(time.DateTime),
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}

	return encoded, nil
}
