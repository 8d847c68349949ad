package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNtfySinkSendsTitleAndBody(t *testing.T) {
	var (
		gotPath  string
		gotTitle string
		gotBody  string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewNtfySink(NtfyConfig{Server: server.URL, Topic: "bank", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Process(context.Background(), testEvent(7)); err != nil {
		t.Fatalf("unexpected process error: %v", err)
	}

	if gotPath != "/bank" {
		t.Errorf("expected topic path /bank, got %q", gotPath)
	}
	if gotTitle != "New transaction on checking" {
		t.Errorf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotBody, "Amount: -12.5 EUR") {
		t.Errorf("body missing amount line: %q", gotBody)
	}
	if !strings.Contains(gotBody, "purchase 7") {
		t.Errorf("body missing description: %q", gotBody)
	}
}

func TestNtfySinkRequiresTopic(t *testing.T) {
	if _, err := NewNtfySink(NtfyConfig{Server: "https://ntfy.sh"}); err == nil {
		t.Fatal("expected error for missing topic, got nil")
	}
}
