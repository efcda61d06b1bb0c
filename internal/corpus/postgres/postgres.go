// Package postgres implements [corpus.Accessor] on top of the audiolog table
// written by the recording pipeline.
//
// Only reviewed rows (non-empty reviewed column) are considered. Matching uses
// ILIKE so keyword lookup is case-insensitive, and both groups are ordered by
// filename so repeated runs over the same data evaluate the same samples.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/kwstune/internal/corpus"
)

// DefaultTable is the audiolog table name used when none is configured.
const DefaultTable = "audiolog"

// Schema is the DDL for the audiolog table as the recording pipeline creates
// it. Only the columns read by [Accessor] are listed.
const Schema = `
CREATE TABLE IF NOT EXISTS audiolog (
    filename               TEXT PRIMARY KEY,
    type                   TEXT NOT NULL DEFAULT '',
    transcription          TEXT NOT NULL DEFAULT '',
    verified_transcription TEXT NOT NULL DEFAULT '',
    reviewed               TEXT NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// DB is the database interface used by [Accessor]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Accessor reads evaluation samples from PostgreSQL.
type Accessor struct {
	db    DB
	table string
}

// Compile-time interface check.
var _ corpus.Accessor = (*Accessor)(nil)

// Option configures an [Accessor].
type Option func(*Accessor)

// WithTable overrides the audiolog table name.
func WithTable(name string) Option {
	return func(a *Accessor) {
		if name != "" {
			a.table = name
		}
	}
}

// New creates an [Accessor] over db.
func New(db DB, opts ...Option) *Accessor {
	a := &Accessor{db: db, table: DefaultTable}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Migrate creates the default audiolog table if it does not exist. Useful for
// fresh deployments and integration tests; production tables are owned by the
// recording pipeline.
func (a *Accessor) Migrate(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("corpus/postgres: migrate: %w", err)
	}
	return nil
}

// FetchSamples implements [corpus.Accessor].
func (a *Accessor) FetchSamples(ctx context.Context, keyword string, limitPositive, limitNegative int) ([]corpus.Sample, error) {
	table := pgx.Identifier{a.table}.Sanitize()

	positive := fmt.Sprintf(`
		SELECT DISTINCT filename, verified_transcription, transcription
		FROM %s
		WHERE reviewed > ''
		  AND verified_transcription ILIKE '%%' || $1 || '%%'
		ORDER BY filename
		LIMIT $2`, table)
	pos, err := a.query(ctx, positive, keyword, limitPositive)
	if err != nil {
		return nil, fmt.Errorf("corpus/postgres: positive samples for %q: %w", keyword, err)
	}

	negative := fmt.Sprintf(`
		SELECT DISTINCT filename, verified_transcription, transcription
		FROM %s
		WHERE reviewed > ''
		  AND transcription ILIKE '%%' || $1 || '%%'
		  AND verified_transcription NOT ILIKE '%%' || $1 || '%%'
		ORDER BY filename
		LIMIT $2`, table)
	neg, err := a.query(ctx, negative, keyword, limitNegative)
	if err != nil {
		return nil, fmt.Errorf("corpus/postgres: false-alarm samples for %q: %w", keyword, err)
	}

	return append(pos, neg...), nil
}

func (a *Accessor) query(ctx context.Context, sql, keyword string, limit int) ([]corpus.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := a.db.Query(ctx, sql, keyword, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []corpus.Sample
	for rows.Next() {
		var s corpus.Sample
		if err := rows.Scan(&s.Filename, &s.VerifiedTranscript, &s.Transcript); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
