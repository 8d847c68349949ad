package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/bank-syncer/syncer"
)

// UpsertTransactions inserts new transactions and overwrites the mutable
// fields of known ones, so a corrective re-fetch never duplicates a row.
func (s *Storage) UpsertTransactions(ctx context.Context, txs []syncer.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := sq.
		Insert("transactions").
		Columns(
			"id",
			"account_id",
			"date",
			"value",
			"wording",
			"original_wording",
			"last_update",
			"raw",
		).
		Suffix(`on conflict (id) do update set
			account_id = excluded.account_id,
			date = excluded.date,
			value = excluded.value,
			wording = excluded.wording,
			original_wording = excluded.original_wording,
			last_update = excluded.last_update,
			raw = excluded.raw`)

	for _, tx := range txs {
		query = query.Values(
			tx.ID,
			tx.AccountID,
			tx.Date,
			tx.Value,
			tx.Wording,
			tx.Original,
			tx.LastUpdate,
			[]byte(tx.Raw),
		)
	}

	if err := s.db.Insert(ctx, query, nil); err != nil {
		return fmt.Errorf("upsert transactions: %w", err)
	}

	return nil
}
