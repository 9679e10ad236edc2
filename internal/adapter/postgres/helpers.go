package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/packetmill/packetmill/internal/domain"
)

// scannable lets row-scan helpers accept pgx.Row and pgx.Rows alike.
type scannable interface {
	Scan(dest ...any) error
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// uniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to one named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// foreignKeyViolation reports whether err says a referenced row is missing.
func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// nullTime maps the zero time to SQL NULL for nullable timestamptz columns.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// orEmpty turns a nil slice into an empty one, so list responses serialize
// as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// textArray normalizes a string slice for a text[] parameter. pgx encodes a
// nil slice as SQL NULL, which the schema's NOT NULL array columns reject.
func textArray(s []string) []string {
	return orEmpty(s)
}

// notFoundWrap maps pgx.ErrNoRows onto domain.ErrNotFound, wrapping any
// other error as-is under the same message.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne turns an UPDATE or DELETE that matched no rows into
// domain.ErrNotFound.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", msg, err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return nil
}
