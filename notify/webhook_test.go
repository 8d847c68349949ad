package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookSinkPostsEventJSON(t *testing.T) {
	var got map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Process(context.Background(), testEvent(7)); err != nil {
		t.Fatalf("unexpected process error: %v", err)
	}

	if _, ok := got["transaction"]; !ok {
		t.Error("payload missing transaction part")
	}
	if _, ok := got["account"]; !ok {
		t.Error("payload missing account part")
	}
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Process(context.Background(), testEvent(7)); err == nil {
		t.Fatal("expected error on 502 response, got nil")
	}
}

func TestWebhookSinkRequiresURL(t *testing.T) {
	if _, err := NewWebhookSink(WebhookConfig{}); err == nil {
		t.Fatal("expected error for missing url, got nil")
	}
}
