package postgres

import (
	"context"
	"testing"

	"github.com/eqtlab/bank-syncer/syncer"
)

// Empty batches must short-circuit before any database work, so a Storage
// with no live connection is enough here.
func TestEmptyBatchesAreNoOps(t *testing.T) {
	s := &Storage{}
	ctx := context.Background()

	if err := s.UpsertAccounts(ctx, nil); err != nil {
		t.Errorf("empty account batch: %v", err)
	}
	if err := s.UpsertTransactions(ctx, nil); err != nil {
		t.Errorf("empty transaction batch: %v", err)
	}
}

// A multi-row upsert touching the same id twice is a Postgres error, so the
// batch must collapse to one row per account first.
func TestCollapseByID(t *testing.T) {
	batch := []syncer.Account{
		{ID: 1, Name: "checking"},
		{ID: 2, Name: "savings"},
		{ID: 1, Name: "checking again"},
	}

	got := collapseByID(batch)

	if len(got) != 2 {
		t.Fatalf("expected 2 unique accounts, got %d", len(got))
	}
	if got[0].ID != 1 || got[0].Name != "checking" {
		t.Errorf("first occurrence must win, got %+v", got[0])
	}
	if got[1].ID != 2 {
		t.Errorf("unexpected second account: %+v", got[1])
	}

	if out := collapseByID(nil); len(out) != 0 {
		t.Errorf("nil batch must stay empty, got %d", len(out))
	}
}
