package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/eqtlab/bank-syncer/pkg/db"
	"github.com/eqtlab/bank-syncer/powens"
)

// SaveAuthToken appends a permanent auth token for the scope. Older tokens
// are kept for audit; LatestAuthToken picks the newest.
func (s *Storage) SaveAuthToken(ctx context.Context, scope, token string) error {
	query := sq.
		Insert("auth_tokens").
		Columns("scope", "token").
		Values(scope, token)

	if err := s.db.Insert(ctx, query, nil); err != nil {
		return fmt.Errorf("insert auth token: %w", err)
	}

	return nil
}

func (s *Storage) LatestAuthToken(ctx context.Context, scope string) (string, error) {
	query := `
		select token from auth_tokens
		where scope = $1
		order by registered_at desc
		limit 1;
	`

	var token string
	err := s.db.RawQuery(ctx, db.ScanOnce(&token), query, scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", powens.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("db select: %w", err)
	}

	return token, nil
}
