// Package ledger records which event ids the receiving side accepted.
//
// Every backend is an idempotent set: recording an id twice leaves the count
// unchanged, so a redelivered event is never counted twice. Rejected
// deliveries must not be recorded at all.
package ledger

import (
	"context"
	"slices"
	"sync"
)

// Ledger is the accepted-id set shared by the receiving side and the
// convergence monitor. Implementations are safe for concurrent use.
type Ledger interface {
	// Record adds id and reports whether it was not already present.
	Record(ctx context.Context, id int) (bool, error)
	// Count returns the number of distinct ids recorded.
	Count(ctx context.Context) (int, error)
	// IDs returns the recorded ids in ascending order.
	IDs(ctx context.Context) ([]int, error)
	// Reset forgets every recorded id. A run calls it before publishing so
	// a durable ledger never carries ids over from an earlier run.
	Reset(ctx context.Context) error
	Close() error
}

// Memory is an in-process Ledger.
type Memory struct {
	mu  sync.RWMutex
	ids map[int]struct{}
}

func NewMemory() *Memory { return &Memory{ids: make(map[int]struct{})} }

func (m *Memory) Record(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return false, nil
	}
	m.ids[id] = struct{}{}
	return true, nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

func (m *Memory) IDs(context.Context) ([]int, error) {
	m.mu.RLock()
	out := make([]int, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	m.mu.RUnlock()
	slices.Sort(out)
	return out, nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	clear(m.ids)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
