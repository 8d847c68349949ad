package postgres

import (
	"context"

	"github.com/eqtlab/bank-syncer/pkg/db"
	"github.com/eqtlab/bank-syncer/syncer"
)

// Storage implements syncer.Storage and powens.TokenStore via PostgreSQL.
type Storage struct {
	db *db.DB
}

func New(db *db.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// RunInTransaction executes f against a Storage whose writes all share one
// database transaction, so a cycle's persistence commits or rolls back as a
// whole.
func (s *Storage) RunInTransaction(ctx context.Context, f func(ctx context.Context, tx syncer.Storage) error) error {
	return s.db.RunInTransaction(ctx, func(ctx context.Context, txDB *db.DB) error {
		return f(ctx, &Storage{db: txDB})
	})
}
