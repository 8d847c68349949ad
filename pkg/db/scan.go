package db

import (
	"github.com/jackc/pgx/v5"
)

type rowScanner func(rows pgx.Rows) error

// ScanOnce scans a single row into dest. With no dest it returns a nil
// scanner, which makes the query fire-and-forget.
func ScanOnce(dest ...any) rowScanner {
	var scanner rowScanner

	if len(dest) > 0 {
		scanner = func(rows pgx.Rows) error {
			return rows.Scan(dest...)
		}
	}

	return scanner
}

type ScanArgs []any

// ScanAll appends one T per row to objs, scanning through the field pointers
// that getArgs exposes.
func ScanAll[T any](objs *[]*T, getArgs func(obj *T) ScanArgs) rowScanner {
	return func(rows pgx.Rows) error {
		var obj = new(T)

		if err := rows.Scan(getArgs(obj)...); err != nil {
			return err
		}

		*objs = append(*objs, obj)

		return nil
	}
}
