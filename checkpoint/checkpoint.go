// Package checkpoint persists per-namespace committed row counts so an
// aborted migration run can be inspected or resumed. Upsert is
// at-least-once, so a checkpoint is a floor, never an exact cursor.
package checkpoint

import (
	"context"
	"sync"
)

// Store records committed counts per run and namespace.
type Store interface {
	// Put records that committed rows of namespace have been acknowledged
	// by the remote service. Counts are monotonic; implementations must
	// not regress an existing value.
	Put(ctx context.Context, runID, namespace string, committed int) error

	// Get returns the recorded count and whether one exists.
	Get(ctx context.Context, runID, namespace string) (int, bool, error)
}

// MemStore is an in-memory Store for tests and single-process runs.
type MemStore struct {
	mu   sync.Mutex
	data map[string]int
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]int)}
}

func key(runID, namespace string) string { return runID + "\x00" + namespace }

// Put implements Store.
func (s *MemStore) Put(ctx context.Context, runID, namespace string, committed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data[key(runID, namespace)]; !ok || committed > cur {
		s.data[key(runID, namespace)] = committed
	}
	return nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, runID, namespace string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.data[key(runID, namespace)]
	return n, ok, nil
}

var _ Store = (*MemStore)(nil)
