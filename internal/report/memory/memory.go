package memory

import (
	"context"
	"fmt"
	"sync"

	"stash/internal/report"
)

// Store is an in-memory SnapshotWriter used in tests and local runs
// without Google credentials.
type Store struct {
	mu    sync.Mutex
	items []report.Snapshot
}

func New() *Store {
	return &Store{}
}

// Append stores the snapshot and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, snap report.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snap)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Snapshots returns a copy of everything appended so far.
func (s *Store) Snapshots() []report.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Snapshot(nil), s.items...)
}
