package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/eqtlab/bank-syncer/syncer"
)

// UpsertAccounts refreshes account rows keyed by their source-assigned id.
// Existing rows get their mutable fields overwritten in place. The batch is
// collapsed to one row per id first; Postgres rejects a multi-row upsert
// that touches the same row twice.
func (s *Storage) UpsertAccounts(ctx context.Context, accounts []syncer.Account) error {
	accounts = collapseByID(accounts)
	if len(accounts) == 0 {
		return nil
	}

	query := sq.
		Insert("accounts").
		Columns(
			"id",
			"name",
			"number",
			"iban",
			"balance",
			"coming_balance",
			"currency",
			"disabled",
			"last_update",
		).
		Suffix(`on conflict (id) do update set
			name = excluded.name,
			number = excluded.number,
			iban = excluded.iban,
			balance = excluded.balance,
			coming_balance = excluded.coming_balance,
			currency = excluded.currency,
			disabled = excluded.disabled,
			last_update = excluded.last_update,
			updated_at = now()`)

	for _, acc := range accounts {
		query = query.Values(
			acc.ID,
			acc.Name,
			acc.Number,
			acc.IBAN,
			acc.Balance,
			acc.ComingBalance,
			acc.Currency,
			acc.Disabled,
			acc.LastUpdate,
		)
	}

	if err := s.db.Insert(ctx, query, nil); err != nil {
		return fmt.Errorf("upsert accounts: %w", err)
	}

	return nil
}

// collapseByID keeps the first occurrence of every account id.
func collapseByID(accounts []syncer.Account) []syncer.Account {
	seen := make(map[int64]struct{}, len(accounts))
	out := accounts[:0:0]

	for _, acc := range accounts {
		if _, ok := seen[acc.ID]; ok {
			continue
		}
		seen[acc.ID] = struct{}{}
		out = append(out, acc)
	}

	return out
}
