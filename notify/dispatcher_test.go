package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/pkg/metrics"
	"github.com/eqtlab/bank-syncer/syncer"
)

type recordingSink struct {
	name string
	err  error

	mu       sync.Mutex
	received []int64
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Process(_ context.Context, event syncer.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.received = append(s.received, event.Transaction.ID)
	return nil
}

func testEvent(txID int64) syncer.Event {
	return syncer.Event{
		Transaction: syncer.Transaction{
			ID:      txID,
			Date:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Value:   decimal.NewFromFloat(-12.5),
			Wording: fmt.Sprintf("purchase %d", txID),
		},
		Account: syncer.Account{
			ID:       1,
			Name:     "checking",
			Currency: "EUR",
		},
	}
}

func newTestDispatcher(sinks ...Sink) *Dispatcher {
	return NewDispatcher(sinks, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
}

func TestDispatcherIsolatesFailingSink(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.New("broker down")}
	working := &recordingSink{name: "working"}

	d := newTestDispatcher(failing, working)

	wantIDs := []int64{3, 5, 7}
	for _, id := range wantIDs {
		d.Deliver(context.Background(), testEvent(id))
	}

	if len(working.received) != len(wantIDs) {
		t.Fatalf("expected %d events at working sink, got %d", len(wantIDs), len(working.received))
	}
	for i, id := range working.received {
		if id != wantIDs[i] {
			t.Errorf("event %d: expected transaction %d, got %d", i, wantIDs[i], id)
		}
	}
}

func TestDispatcherDeliversExactlyOncePerEvent(t *testing.T) {
	sink := &recordingSink{name: "only"}
	d := newTestDispatcher(sink)

	d.Deliver(context.Background(), testEvent(42))
	d.Deliver(context.Background(), testEvent(42))

	// the dispatcher itself never duplicates within one Deliver call;
	// duplicates across calls are the orchestrator's at-least-once contract
	if len(sink.received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sink.received))
	}
}

func TestDispatcherWithoutSinks(t *testing.T) {
	d := newTestDispatcher()
	d.Deliver(context.Background(), testEvent(1)) // must not panic
}
