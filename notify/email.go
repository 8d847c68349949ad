package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/eqtlab/bank-syncer/syncer"
)

// nolint:lll
type EmailConfig struct {
	Enabled  bool   `env:"ENABLED, default=false"`
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT, default=587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	To       string `env:"TO"`
	From     string `env:"FROM"` // defaults to SMTP_USER
}

// EmailSink mails a human-readable summary of the transaction plus the raw
// JSON payload for reference.
type EmailSink struct {
	client *mail.Client
	from   string
	to     string
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.SMTPHost == "" || cfg.SMTPUser == "" || cfg.To == "" {
		return nil, errors.New("email smtp host, user and recipient are required")
	}

	from := cfg.From
	if from == "" {
		from = cfg.SMTPUser
	}

	client, err := mail.NewClient(
		cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUser),
		mail.WithPassword(cfg.SMTPPass),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("new smtp client: %w", err)
	}

	return &EmailSink{
		client: client,
		from:   from,
		to:     cfg.To,
	}, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Process(ctx context.Context, event syncer.Event) error {
	payload, err := payloadJSON(event)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(s.to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	msg.Subject(fmt.Sprintf("New Transaction Notification on account %s", event.Account.Name))
	msg.SetBodyString(mail.TypeTextPlain, buildEmailBody(event, payload))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func buildEmailBody(event syncer.Event, payload []byte) string {
	return fmt.Sprintf(
		"A new transaction has been recorded:\n\n"+
			"  - Account: %s\n"+
			"  - Description: %s\n"+
			"  - Amount: %s %s\n"+
			"  - Date: %s\n\n"+
			"---\nRaw JSON data:\n%s\n",
		event.Account.Name,
		event.Transaction.Wording,
		event.Transaction.Value.String(),
		event.Account.Currency,
		event.Transaction.Date.Format(time.DateOnly),
		payload,
	)
}
