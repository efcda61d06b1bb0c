// Package postgres provides a [ledger.Ledger] backed by a PostgreSQL table.
//
// Peak queries are pushed down to SQL aggregates so that a progress viewer
// reading the same table sees exactly what the controller sees. [Store.Reset]
// issues a single DELETE, which PostgreSQL applies atomically: readers never
// observe a mix of rows from two rounds.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/kwstune/internal/ledger"
)

// Schema is the SQL DDL for the kws_trials table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS kws_trials (
    id         BIGSERIAL PRIMARY KEY,
    keyword    TEXT NOT NULL,
    threshold  INTEGER NOT NULL,
    precision  DOUBLE PRECISION NOT NULL,
    recall     DOUBLE PRECISION NOT NULL,
    f1         DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_kws_trials_f1 ON kws_trials(f1);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [ledger.Ledger] backed by PostgreSQL.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ ledger.Ledger = (*Store)(nil)

// New creates a [Store] on top of db. The caller is responsible for calling
// [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ledger/postgres: migrate: %w", err)
	}
	return nil
}

// Record inserts trial as a new row.
func (s *Store) Record(ctx context.Context, trial ledger.Trial) error {
	const query = `
		INSERT INTO kws_trials (keyword, threshold, precision, recall, f1)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(ctx, query, trial.Keyword, trial.Threshold, trial.Precision, trial.Recall, trial.F1)
	if err != nil {
		return fmt.Errorf("ledger/postgres: record: %w", err)
	}
	return nil
}

// MaxF1 returns max(f1); ok is false when the table is empty.
func (s *Store) MaxF1(ctx context.Context) (float64, bool, error) {
	var f1 *float64
	if err := s.db.QueryRow(ctx, `SELECT max(f1) FROM kws_trials`).Scan(&f1); err != nil {
		return 0, false, fmt.Errorf("ledger/postgres: max f1: %w", err)
	}
	if f1 == nil {
		return 0, false, nil
	}
	return *f1, true, nil
}

// CountAt returns the number of rows whose f1 equals the argument.
func (s *Store) CountAt(ctx context.Context, f1 float64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM kws_trials WHERE f1 = $1`, f1).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger/postgres: count at %v: %w", f1, err)
	}
	return n, nil
}

// MinThresholdBelow returns the largest threshold below bound, falling back to
// the smallest threshold in the table.
func (s *Store) MinThresholdBelow(ctx context.Context, bound int) (int, bool, error) {
	const query = `
		SELECT COALESCE(
			(SELECT max(threshold) FROM kws_trials WHERE threshold < $1),
			(SELECT min(threshold) FROM kws_trials)
		)`
	var th *int
	if err := s.db.QueryRow(ctx, query, bound).Scan(&th); err != nil {
		return 0, false, fmt.Errorf("ledger/postgres: threshold below %d: %w", bound, err)
	}
	if th == nil {
		return 0, false, nil
	}
	return *th, true, nil
}

// MinThresholdAchieving returns min(threshold) among rows with the given f1.
func (s *Store) MinThresholdAchieving(ctx context.Context, f1 float64) (int, bool, error) {
	var th *int
	if err := s.db.QueryRow(ctx, `SELECT min(threshold) FROM kws_trials WHERE f1 = $1`, f1).Scan(&th); err != nil {
		return 0, false, fmt.Errorf("ledger/postgres: threshold achieving %v: %w", f1, err)
	}
	if th == nil {
		return 0, false, nil
	}
	return *th, true, nil
}

// Trials returns all rows in insertion order.
func (s *Store) Trials(ctx context.Context) ([]ledger.Trial, error) {
	rows, err := s.db.Query(ctx, `
		SELECT keyword, threshold, precision, recall, f1
		FROM kws_trials
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: trials: %w", err)
	}
	defer rows.Close()

	var out []ledger.Trial
	for rows.Next() {
		var tr ledger.Trial
		if err := rows.Scan(&tr.Keyword, &tr.Threshold, &tr.Precision, &tr.Recall, &tr.F1); err != nil {
			return nil, fmt.Errorf("ledger/postgres: trials scan: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger/postgres: trials: %w", err)
	}
	return out, nil
}

// Reset deletes every row.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kws_trials`); err != nil {
		return fmt.Errorf("ledger/postgres: reset: %w", err)
	}
	return nil
}
