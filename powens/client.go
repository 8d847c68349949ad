package powens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/syncer"
)

const (
	maxAttempts     = 3
	initialInterval = time.Second
)

// nolint:lll
type Config struct {
	Domain       string        `env:"DOMAIN, required"`        // Powens app domain, <domain>.biapi.pro
	ClientID     string        `env:"CLIENT_ID, required"`     // API client id
	ClientSecret string        `env:"CLIENT_SECRET, required"` // API client secret
	CallbackURL  string        `env:"CALLBACK_URL"`            // Redirect URL for the Connect webview
	APIBase      string        `env:"API_BASE"`                // Overrides the derived API root, mostly for self-hosted gateways
	MaxPages     int           `env:"MAX_PAGES, default=0"`    // Pagination hard stop, 0 means unbounded
	Timeout      time.Duration `env:"TIMEOUT, default=60s"`    // Budget for one HTTP attempt
}

// BaseURL returns the API root for the configured domain.
func (c Config) BaseURL() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return fmt.Sprintf("https://%s.biapi.pro/2.0", c.Domain)
}

// TokenProvider supplies the bearer credential for API calls and exchanges a
// fresh one when the source reports it expired.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client fetches accounts and transactions from the Powens banking API.
// Every call is bounded by a per-attempt timeout and retried with
// exponential backoff on transient failures.
type Client struct {
	baseURL       string
	http          *http.Client
	tokens        TokenProvider
	logger        *zap.Logger
	maxPages      int
	retryInterval time.Duration
}

func NewClient(cfg Config, tokens TokenProvider, logger *zap.Logger) *Client {
	return &Client{
		baseURL:       cfg.BaseURL(),
		http:          &http.Client{Timeout: cfg.Timeout},
		tokens:        tokens,
		logger:        logger,
		maxPages:      cfg.MaxPages,
		retryInterval: initialInterval,
	}
}

// FetchAccounts lists the user's bank accounts, optionally including
// disabled ones. Malformed records are dropped with a warning.
func (c *Client) FetchAccounts(ctx context.Context, includeDisabled bool) ([]syncer.Account, error) {
	endpoint := c.baseURL + "/users/me/accounts"
	if includeDisabled {
		endpoint += "?all"
	}

	body, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}

	var env accountsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode accounts response: %w", err)
	}

	accounts := make([]syncer.Account, 0, len(env.Accounts))
	for _, raw := range env.Accounts {
		var acc apiAccount
		if err := json.Unmarshal(raw, &acc); err != nil {
			c.logger.Warn("dropping malformed account record", zap.Error(err))
			continue
		}

		domain, err := acc.toDomain()
		if err != nil {
			c.logger.Warn("dropping malformed account record", zap.Int64("account_id", acc.ID), zap.Error(err))
			continue
		}

		accounts = append(accounts, domain)
	}

	return accounts, nil
}

// FetchTransactions pulls all transactions inside the window, following
// pagination cursors until the source is exhausted or maxPages is hit.
// Malformed records are dropped with a warning, the batch continues.
func (c *Client) FetchTransactions(ctx context.Context, window syncer.FetchWindow, pageSize int) ([]syncer.Transaction, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	if !window.MinDate.IsZero() {
		params.Set("min_date", window.MinDate.Format(wireDate))
	}

	var out []syncer.Transaction

	for page := 0; c.maxPages == 0 || page < c.maxPages; page++ {
		endpoint := c.baseURL + "/users/me/transactions?" + params.Encode()

		body, err := c.call(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch transactions page %d: %w", page+1, err)
		}

		var env transactionsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode transactions response: %w", err)
		}

		if len(env.Transactions) == 0 {
			break
		}

		for _, raw := range env.Transactions {
			var tx apiTransaction
			if err := json.Unmarshal(raw, &tx); err != nil {
				c.logger.Warn("dropping malformed transaction record", zap.Error(err))
				continue
			}

			domain, err := tx.toDomain(raw)
			if err != nil {
				c.logger.Warn("dropping malformed transaction record", zap.Int64("transaction_id", tx.ID), zap.Error(err))
				continue
			}

			out = append(out, domain)
		}

		cursor, ok := env.Links.nextCursor()
		if !ok {
			break
		}
		params.Set("cursor", string(cursor))
	}

	return out, nil
}

// ActivateAccount grants user consent for a disabled account.
func (c *Client) ActivateAccount(ctx context.Context, accountID int64) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/users/me/accounts/%d?all", c.baseURL, accountID)

	body, err := c.call(ctx, http.MethodPost, endpoint, map[string]any{"disabled": false})
	if err != nil {
		return nil, fmt.Errorf("activate account %d: %w", accountID, err)
	}

	return body, nil
}

// pageCursor is the continuation token for transaction pagination. It is
// extracted from the next-page link and fed back verbatim; callers never see
// it.
type pageCursor string

func (l pageLinks) nextCursor() (pageCursor, bool) {
	if l.Next == nil || l.Next.Href == "" {
		return "", false
	}

	u, err := url.Parse(l.Next.Href)
	if err != nil {
		return "", false
	}

	cursor := u.Query().Get("cursor")
	if cursor == "" {
		return "", false
	}

	return pageCursor(cursor), true
}

// call performs one authenticated API call with up to maxAttempts tries on
// transient failures and a single token refresh on auth expiry.
func (c *Client) call(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2

	var (
		result    []byte
		attempts  int
		refreshed bool
	)

	op := func() error {
		attempts++

		body, err := c.attempt(ctx, method, endpoint, payload)
		if err == nil {
			result = body
			return nil
		}

		if errors.Is(err, ErrAuthExpired) {
			if refreshed {
				return backoff.Permanent(err)
			}
			refreshed = true

			if _, refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
				return backoff.Permanent(fmt.Errorf("refresh token: %w", refreshErr))
			}

			c.logger.Info("auth token refreshed after 401, retrying request")
			return err
		}

		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		if attempts >= maxAttempts {
			return backoff.Permanent(err)
		}

		c.logger.Warn(
			"transient api failure, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthExpired
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &apiError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
