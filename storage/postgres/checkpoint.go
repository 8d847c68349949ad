package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eqtlab/bank-syncer/pkg/db"
	"github.com/eqtlab/bank-syncer/syncer"
)

// LatestCheckpoint returns the committed checkpoint for the scope, or the
// zero checkpoint when the scope has never completed a cycle.
func (s *Storage) LatestCheckpoint(ctx context.Context, scope string) (syncer.Checkpoint, error) {
	query := `
		select last_tx_id, last_tx_date from checkpoints
		where scope = $1;
	`

	var cp syncer.Checkpoint
	err := s.db.RawQuery(ctx, db.ScanOnce(&cp.LastTxID, &cp.LastTxDate), query, scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return syncer.Checkpoint{}, nil
	}
	if err != nil {
		return syncer.Checkpoint{}, fmt.Errorf("db select: %w", err)
	}

	return cp, nil
}

// CommitCheckpoint upserts the scope's checkpoint. The guard keeps the
// committed (date, id) pair monotonic: a stale candidate never overwrites a
// newer row.
func (s *Storage) CommitCheckpoint(ctx context.Context, scope string, cp syncer.Checkpoint) error {
	query := `
		insert into checkpoints (scope, last_tx_id, last_tx_date, updated_at)
		values ($1, $2, $3, now())
		on conflict (scope) do update set
			last_tx_id = excluded.last_tx_id,
			last_tx_date = excluded.last_tx_date,
			updated_at = excluded.updated_at
		where (checkpoints.last_tx_date, checkpoints.last_tx_id)
			<= (excluded.last_tx_date, excluded.last_tx_id);
	`

	if err := s.db.RawQuery(ctx, nil, query, scope, cp.LastTxID, cp.LastTxDate); err != nil {
		return fmt.Errorf("db upsert: %w", err)
	}

	return nil
}
