package ledger

import (
	"context"
	"slices"
	"sync"
)

// Compile-time interface check.
var _ Ledger = (*Memory)(nil)

// Memory is an in-process [Ledger]. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	rows []Trial
}

// NewMemory returns an empty [Memory] ledger.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, trial Trial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, trial)
	return nil
}

func (m *Memory) MaxF1(_ context.Context) (float64, bool, error) {
	f1, ok := m.summary().MaxF1()
	return f1, ok, nil
}

func (m *Memory) CountAt(_ context.Context, f1 float64) (int, error) {
	return m.summary().CountAt(f1), nil
}

func (m *Memory) MinThresholdBelow(_ context.Context, bound int) (int, bool, error) {
	t, ok := m.summary().MinThresholdBelow(bound)
	return t, ok, nil
}

func (m *Memory) MinThresholdAchieving(_ context.Context, f1 float64) (int, bool, error) {
	t, ok := m.summary().MinThresholdAchieving(f1)
	return t, ok, nil
}

func (m *Memory) Trials(_ context.Context) ([]Trial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rows), nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	return nil
}

// summary snapshots the rows under the read lock. Rows are never mutated in
// place, so sharing the backing array with the snapshot is safe.
func (m *Memory) summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summarize(m.rows[:len(m.rows):len(m.rows)])
}
