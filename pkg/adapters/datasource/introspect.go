package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Catalog queries are written with '?' placeholders and rebound for the
// connection's driver before they run.

// SelectKeyColumns runs a constraint or index query returning KeyColumn rows.
func SelectKeyColumns(ctx context.Context, q Querier, query string, args ...any) ([]KeyColumn, error) {
	rows := []KeyColumn{}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectColumns runs a column listing query returning ColumnMetadata rows.
func SelectColumns(ctx context.Context, q Querier, query string, args ...any) ([]ColumnMetadata, error) {
	cols := []ColumnMetadata{}
	if err := sqlx.SelectContext(ctx, q, &cols, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return cols, nil
}

// CountExists runs a COUNT query and reports whether it found anything.
func CountExists(ctx context.Context, q Querier, query string, args ...any) (bool, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return n > 0, nil
}

// GetStorage runs a single-row storage query. No row means the engine
// could not say.
func GetStorage(ctx context.Context, q Querier, query string, args ...any) (*StorageMetadata, error) {
	var s StorageMetadata
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return &StorageMetadata{SizeBytes: -1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query storage: %w", err)
	}
	return &s, nil
}
