package repositories

import (
	"context"
	"database/sql"
)

// recordReader runs the read queries over parsed_instructions. *sql.DB
// satisfies it; tests substitute a sqlmock connection.
type recordReader interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is the Scan half of *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Nullable columns map to nil pointers in StructuredInstruction.

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
