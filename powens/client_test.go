package powens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/syncer"
)

type staticTokens struct {
	token     string
	refreshTo string
	refreshes int32
}

func (s *staticTokens) Token(context.Context) (string, error) {
	return s.token, nil
}

func (s *staticTokens) Refresh(context.Context) (string, error) {
	atomic.AddInt32(&s.refreshes, 1)
	if s.refreshTo == "" {
		return "", errors.New("refresh rejected")
	}
	s.token = s.refreshTo
	return s.refreshTo, nil
}

func newTestClient(serverURL string, tokens TokenProvider) *Client {
	c := NewClient(Config{
		Domain:       "testbank",
		ClientID:     "id",
		ClientSecret: "secret",
		APIBase:      serverURL,
		Timeout:      5 * time.Second,
	}, tokens, zap.NewNop())
	c.retryInterval = time.Millisecond
	return c
}

func TestFetchTransactionsFollowsPagination(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", auth)
		}

		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{
				"transactions": [
					{"id": 5, "id_account": 1, "date": "2024-03-02", "value": -10.5, "wording": "coffee", "last_update": "2024-03-02 10:00:00"},
					{"id": 3, "id_account": 1, "date": "2024-03-01", "value": 250, "wording": "salary", "last_update": "2024-03-01 09:00:00"}
				],
				"_links": {"next": {"href": "/users/me/transactions?cursor=page2"}}
			}`)
		case "page2":
			fmt.Fprint(w, `{"transactions": [{"id": 7, "id_account": 1, "date": "2024-03-03", "value": -3, "wording": "bus"}], "_links": {}}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	txs, err := client.FetchTransactions(context.Background(), syncer.FetchWindow{}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions across pages, got %d", len(txs))
	}
	if requests != 2 {
		t.Errorf("expected 2 page requests, got %d", requests)
	}
	if txs[0].ID != 5 || txs[2].ID != 7 {
		t.Errorf("unexpected batch order: %d..%d", txs[0].ID, txs[2].ID)
	}
	if txs[0].Value.String() != "-10.5" {
		t.Errorf("expected value -10.5, got %s", txs[0].Value)
	}
	if len(txs[0].Raw) == 0 {
		t.Error("raw payload must be retained")
	}
}

func TestFetchTransactionsHonorsMaxPages(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{
			"transactions": [{"id": %d, "id_account": 1, "date": "2024-03-01", "value": 1}],
			"_links": {"next": {"href": "/users/me/transactions?cursor=page%d"}}
		}`, n, n+1)
	}))
	defer server.Close()

	client := NewClient(Config{
		Domain:       "testbank",
		ClientID:     "id",
		ClientSecret: "secret",
		APIBase:      server.URL,
		MaxPages:     1,
		Timeout:      5 * time.Second,
	}, &staticTokens{token: "tok"}, zap.NewNop())

	txs, err := client.FetchTransactions(context.Background(), syncer.FetchWindow{}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if requests != 1 {
		t.Errorf("expected the page cap to stop pagination, got %d requests", requests)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction from the capped fetch, got %d", len(txs))
	}
}

func TestFetchTransactionsSetsMinDate(t *testing.T) {
	var gotMinDate string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMinDate = r.URL.Query().Get("min_date")
		fmt.Fprint(w, `{"transactions": [], "_links": {}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	window := syncer.FetchWindow{MinDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := client.FetchTransactions(context.Background(), window, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMinDate != "2024-03-01" {
		t.Errorf("expected min_date 2024-03-01, got %q", gotMinDate)
	}
}

func TestFetchTransactionsDropsMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"transactions": [
				{"id": 3, "id_account": 1, "date": "2024-03-01", "value": 10},
				{"id": 4, "id_account": 1, "date": "not-a-date", "value": 10},
				{"id_account": 1, "date": "2024-03-01", "value": 10},
				{"id": 5, "id_account": 1, "date": "2024-03-02", "value": 20}
			],
			"_links": {}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	txs, err := client.FetchTransactions(context.Background(), syncer.FetchWindow{}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(txs) != 2 {
		t.Fatalf("expected malformed records to be dropped, got %d records", len(txs))
	}
	if txs[0].ID != 3 || txs[1].ID != 5 {
		t.Errorf("unexpected surviving ids: %d, %d", txs[0].ID, txs[1].ID)
	}
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"accounts": []}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	if _, err := client.FetchAccounts(context.Background(), false); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 attempts, got %d", requests)
	}
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	if _, err := client.FetchAccounts(context.Background(), false); err == nil {
		t.Fatal("expected error after exhausted retries, got nil")
	}
	if requests != int32(maxAttempts) {
		t.Errorf("expected %d attempts, got %d", maxAttempts, requests)
	}
}

func TestCallFailsFastOnClientError(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	_, err := client.FetchAccounts(context.Background(), false)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected 400 api error, got %v", err)
	}
	if requests != 1 {
		t.Errorf("expected a single attempt for 4xx, got %d", requests)
	}
}

func TestCallRefreshesTokenOnceOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"accounts": []}`)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale", refreshTo: "fresh"}
	client := newTestClient(server.URL, tokens)

	if _, err := client.FetchAccounts(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.refreshes != 1 {
		t.Errorf("expected exactly one refresh, got %d", tokens.refreshes)
	}
}

func TestCallFailsOnPersistentAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale", refreshTo: "still-stale"}
	client := newTestClient(server.URL, tokens)

	_, err := client.FetchAccounts(context.Background(), false)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if tokens.refreshes != 1 {
		t.Errorf("expected exactly one refresh attempt, got %d", tokens.refreshes)
	}
}

func TestFetchAccountsIncludeDisabled(t *testing.T) {
	var gotRawQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"accounts": [
			{"id": 1, "name": "checking", "iban": "FR7612345", "balance": 1200.42, "coming": -30, "currency": {"id": "EUR"}, "disabled": null, "last_update": "2024-03-01 08:00:00"},
			{"id": 2, "name": "old", "balance": 0, "currency": {"id": "EUR"}, "disabled": "2023-01-01 00:00:00", "last_update": "2023-01-01 00:00:00"}
		]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok"})

	accounts, err := client.FetchAccounts(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotRawQuery != "all" {
		t.Errorf("expected ?all query, got %q", gotRawQuery)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Balance.String() != "1200.42" {
		t.Errorf("expected balance 1200.42, got %s", accounts[0].Balance)
	}
	if accounts[0].Disabled {
		t.Error("account 1 must not be disabled")
	}
	if !accounts[1].Disabled {
		t.Error("account 2 must be disabled")
	}
}
