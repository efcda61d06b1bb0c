// Package history keeps a record of finished tuning runs as append-only JSON
// lines in a local file.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Record is a single finished run.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	Keywords      []string  `json:"keywords"`
	BestThreshold int       `json:"best_threshold"`
	Description   string    `json:"description,omitempty"`
}

// FileStore persists run records as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Append writes a record for a finished run.
func (s *FileStore) Append(keywords []string, best int, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := Record{
		Timestamp:     s.now().UTC(),
		Keywords:      keywords,
		BestThreshold: best,
		Description:   description,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// List returns every record in file order. A missing file yields no records.
func (s *FileStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("history: line %d: %w", line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	return out, nil
}
