package powens

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/pkg/cache"
)

// ErrNoToken is returned by a TokenStore when no credential has ever been
// persisted for the scope.
var ErrNoToken = errors.New("no stored auth token")

// TokenStore persists permanent auth tokens per scope so a restarted process
// resumes with the same credential.
type TokenStore interface {
	SaveAuthToken(ctx context.Context, scope, token string) error
	LatestAuthToken(ctx context.Context, scope string) (string, error)
}

// Scope identifies one (domain, credential) sync stream. Checkpoints and
// tokens are keyed by it.
func (c Config) Scope() string {
	sum := md5.Sum([]byte(c.ClientID + ":" + c.ClientSecret))
	return c.Domain + ":" + hex.EncodeToString(sum[:])
}

// Auth acquires and refreshes the permanent bearer token for one credential
// pair. Lookup order is memory, cache, store, then a fresh exchange against
// the auth endpoint.
type Auth struct {
	cfg    Config
	http   *http.Client
	store  TokenStore
	cache  *cache.Cache
	logger *zap.Logger

	mu    sync.Mutex
	token string
}

func NewAuth(cfg Config, store TokenStore, c *cache.Cache, logger *zap.Logger) *Auth {
	return &Auth{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		store:  store,
		cache:  c,
		logger: logger,
	}
}

func (a *Auth) cacheKey() string {
	return "auth_token:" + a.cfg.Scope()
}

// Token returns the current bearer token, exchanging credentials for a new
// one only when nothing usable is known yet.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" {
		return a.token, nil
	}

	if token, err := a.cache.Get(ctx, a.cacheKey()); err == nil {
		a.token = token
		return token, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		a.logger.Warn("token cache lookup failed", zap.Error(err))
	}

	token, err := a.store.LatestAuthToken(ctx, a.cfg.Scope())
	if err == nil {
		a.remember(ctx, token, false)
		return token, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return "", fmt.Errorf("load stored token: %w", err)
	}

	return a.exchange(ctx)
}

// Refresh discards the known token and exchanges credentials for a fresh
// one.
func (a *Auth) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token = ""
	if err := a.cache.Delete(ctx, a.cacheKey()); err != nil {
		a.logger.Warn("token cache invalidation failed", zap.Error(err))
	}

	return a.exchange(ctx)
}

// exchange calls /auth/init and persists the returned permanent token.
// Callers must hold a.mu.
func (a *Auth) exchange(ctx context.Context) (string, error) {
	payload := map[string]string{
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
	}

	body, err := a.post(ctx, a.cfg.BaseURL()+"/auth/init", payload)
	if err != nil {
		return "", fmt.Errorf("auth init: %w", err)
	}

	var resp authInitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if resp.AuthToken == "" {
		return "", errors.New("no auth_token in response")
	}

	a.remember(ctx, resp.AuthToken, true)
	a.logger.Info("acquired permanent auth token", zap.String("scope", a.cfg.Scope()))

	return resp.AuthToken, nil
}

func (a *Auth) remember(ctx context.Context, token string, persist bool) {
	a.token = token

	if err := a.cache.Set(ctx, a.cacheKey(), token); err != nil {
		a.logger.Warn("token cache write failed", zap.Error(err))
	}
	if persist {
		if err := a.store.SaveAuthToken(ctx, a.cfg.Scope(), token); err != nil {
			a.logger.Warn("token store write failed", zap.Error(err))
		}
	}
}

// TempCode exchanges the permanent token for a one-time code, used to open
// the Connect webview.
func (a *Auth) TempCode(ctx context.Context) (string, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL()+"/auth/token/code", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := a.roundtrip(req)
	if err != nil {
		return "", fmt.Errorf("get temp code: %w", err)
	}

	var resp tempCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode temp code response: %w", err)
	}
	if resp.Code == "" {
		return "", errors.New("no code in response")
	}

	return resp.Code, nil
}

// WebviewURL builds the Powens Connect webview URL for interactive bank
// enrollment.
func (a *Auth) WebviewURL(ctx context.Context, lang, flow string) (string, error) {
	code, err := a.TempCode(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("domain", a.cfg.Domain)
	params.Set("client_id", a.cfg.ClientID)
	params.Set("code", code)
	if a.cfg.CallbackURL != "" {
		params.Set("redirect_uri", a.cfg.CallbackURL)
	}

	return fmt.Sprintf("https://webview.powens.com/%s/%s?%s", lang, flow, params.Encode()), nil
}

func (a *Auth) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.roundtrip(req)
}

func (a *Auth) roundtrip(req *http.Request) ([]byte, error) {
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &apiError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
