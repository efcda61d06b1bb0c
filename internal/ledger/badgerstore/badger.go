// Package badgerstore provides an embedded [ledger.Ledger] backed by BadgerDB.
//
// Rows are msgpack-encoded under "trial/<seq>" keys where seq is a big-endian
// counter, so a prefix scan returns them in insertion order. Use it for
// single-machine tuning runs that must survive a restart without a database
// server.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrWong99/kwstune/internal/ledger"
)

var trialPrefix = []byte("trial/")

// Options configures the BadgerDB store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests.
	InMemory bool
}

// Store is a [ledger.Ledger] backed by BadgerDB.
type Store struct {
	db *badger.DB

	mu  sync.Mutex // serialises writers and guards seq
	seq uint64
}

// Compile-time interface check.
var _ ledger.Ledger = (*Store)(nil)

// Open opens (or creates) the store described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("ledger/badger: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("ledger/badger: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.loadSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// loadSeq positions the key counter after the last stored row.
func (s *Store) loadSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seeking in reverse needs a key past every "trial/<seq>" key.
		seek := append(append([]byte{}, trialPrefix...), 0xff)
		it.Seek(seek)
		if it.ValidForPrefix(trialPrefix) {
			s.seq = binary.BigEndian.Uint64(it.Item().Key()[len(trialPrefix):])
		}
		return nil
	})
}

func (s *Store) Record(_ context.Context, trial ledger.Trial) error {
	val, err := msgpack.Marshal(trial)
	if err != nil {
		return fmt.Errorf("ledger/badger: marshal trial: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.seq + 1
	key := make([]byte, len(trialPrefix)+8)
	copy(key, trialPrefix)
	binary.BigEndian.PutUint64(key[len(trialPrefix):], next)

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return fmt.Errorf("ledger/badger: record: %w", err)
	}
	s.seq = next
	return nil
}

func (s *Store) Trials(_ context.Context) ([]ledger.Trial, error) {
	var out []ledger.Trial
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = trialPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(trialPrefix); it.ValidForPrefix(trialPrefix); it.Next() {
			var tr ledger.Trial
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &tr)
			}); err != nil {
				return err
			}
			out = append(out, tr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger/badger: trials: %w", err)
	}
	return out, nil
}

func (s *Store) summary(ctx context.Context) (ledger.Summary, error) {
	rows, err := s.Trials(ctx)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(rows), nil
}

func (s *Store) MaxF1(ctx context.Context) (float64, bool, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, false, err
	}
	f1, ok := sum.MaxF1()
	return f1, ok, nil
}

func (s *Store) CountAt(ctx context.Context, f1 float64) (int, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, err
	}
	return sum.CountAt(f1), nil
}

func (s *Store) MinThresholdBelow(ctx context.Context, bound int) (int, bool, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, false, err
	}
	th, ok := sum.MinThresholdBelow(bound)
	return th, ok, nil
}

func (s *Store) MinThresholdAchieving(ctx context.Context, f1 float64) (int, bool, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, false, err
	}
	th, ok := sum.MinThresholdAchieving(f1)
	return th, ok, nil
}

// Reset deletes every trial row inside one transaction, so readers see either
// the whole old round or an empty ledger.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = trialPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(trialPrefix); it.ValidForPrefix(trialPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger/badger: reset: %w", err)
	}
	s.seq = 0
	return nil
}

// slogLogger routes badger's logging through slog, dropping info and debug.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any)   { slog.Error(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Warningf(f string, v ...any) { slog.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Infof(string, ...any)        {}
func (slogLogger) Debugf(string, ...any)       {}
