package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/bank-syncer/syncer"
)

// UpsertBalanceSnapshot records one balance observation. A snapshot with an
// already-known (account_id, observed_at) is a no-op refresh and creates no
// extra history entry.
func (s *Storage) UpsertBalanceSnapshot(ctx context.Context, snap syncer.BalanceSnapshot) error {
	query := sq.
		Insert("balance_snapshots").
		Columns("account_id", "balance", "coming_balance", "observed_at").
		Values(snap.AccountID, snap.Balance, snap.ComingBalance, snap.ObservedAt).
		Suffix("on conflict (account_id, observed_at) do nothing")

	if err := s.db.Insert(ctx, query, nil); err != nil {
		return fmt.Errorf("insert balance snapshot: %w", err)
	}

	return nil
}
