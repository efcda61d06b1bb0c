// Package ledger stores the threshold trials of the active refinement round
// and answers the peak queries the search controller needs.
//
// A [Ledger] is append-only: rows are never mutated and only disappear through
// [Ledger.Reset], which the controller calls when it starts a refinement round
// with an enlarged sample budget. The in-memory [Memory] implementation lives in
// this package; persistent backends live in the postgres and badgerstore
// subpackages and share the query semantics implemented by [Summarize].
package ledger

import (
	"context"
	"math"
)

// Trial is a single (keyword, threshold) evaluation result.
type Trial struct {
	Keyword   string  `json:"keyword" msgpack:"keyword"`
	Threshold int     `json:"threshold" msgpack:"threshold"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	F1        float64 `json:"f1" msgpack:"f1"`
}

// Ledger is the append-only trial store for one refinement round.
//
// Implementations must be safe for one writer and any number of concurrent
// readers.
type Ledger interface {
	// Record appends trial. Re-testing a threshold adds another row.
	Record(ctx context.Context, trial Trial) error

	// MaxF1 returns the largest F1 across all rows. ok is false when the
	// ledger is empty, meaning there is no peak yet.
	MaxF1(ctx context.Context) (f1 float64, ok bool, err error)

	// CountAt returns how many rows have exactly the given F1.
	CountAt(ctx context.Context, f1 float64) (int, error)

	// MinThresholdBelow returns the largest threshold strictly below bound.
	// When no such row exists it falls back to the smallest threshold in the
	// ledger. ok is false only when the ledger is empty.
	MinThresholdBelow(ctx context.Context, bound int) (threshold int, ok bool, err error)

	// MinThresholdAchieving returns the smallest threshold among rows whose F1
	// equals f1. ok is false when no row has that F1.
	MinThresholdAchieving(ctx context.Context, f1 float64) (threshold int, ok bool, err error)

	// Trials returns a snapshot of all rows in insertion order.
	Trials(ctx context.Context) ([]Trial, error)

	// Reset removes every row in a single atomic operation.
	Reset(ctx context.Context) error
}

// Summary holds the answers to every ledger query over a fixed row set.
type Summary struct {
	rows []Trial
}

// Summarize wraps rows for querying. Backends that cannot push the queries
// down to their storage engine load all rows and delegate here.
func Summarize(rows []Trial) Summary {
	return Summary{rows: rows}
}

// MaxF1 mirrors [Ledger.MaxF1].
func (s Summary) MaxF1() (float64, bool) {
	if len(s.rows) == 0 {
		return 0, false
	}
	best := math.Inf(-1)
	for _, r := range s.rows {
		if r.F1 > best {
			best = r.F1
		}
	}
	return best, true
}

// CountAt mirrors [Ledger.CountAt].
func (s Summary) CountAt(f1 float64) int {
	n := 0
	for _, r := range s.rows {
		if r.F1 == f1 {
			n++
		}
	}
	return n
}

// MinThresholdBelow mirrors [Ledger.MinThresholdBelow].
func (s Summary) MinThresholdBelow(bound int) (int, bool) {
	if len(s.rows) == 0 {
		return 0, false
	}
	below, found := 0, false
	lowest := s.rows[0].Threshold
	for _, r := range s.rows {
		if r.Threshold < lowest {
			lowest = r.Threshold
		}
		if r.Threshold < bound && (!found || r.Threshold > below) {
			below, found = r.Threshold, true
		}
	}
	if found {
		return below, true
	}
	return lowest, true
}

// MinThresholdAchieving mirrors [Ledger.MinThresholdAchieving].
func (s Summary) MinThresholdAchieving(f1 float64) (int, bool) {
	best, found := 0, false
	for _, r := range s.rows {
		if r.F1 != f1 {
			continue
		}
		if !found || r.Threshold < best {
			best, found = r.Threshold, true
		}
	}
	return best, found
}
