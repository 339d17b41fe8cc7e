package memory

import (
	"context"
	"sync"

	"fluxo/internal/sheets"
)

// Store keeps exported snapshots in memory. It is the default export
// target when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	exports []sheets.Snapshot
}

var (
	_ sheets.Exporter       = (*Store)(nil)
	_ sheets.SnapshotReader = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// Export records the snapshot.
func (s *Store) Export(_ context.Context, snapshot sheets.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, snapshot)
	return nil
}

// Latest returns the most recent snapshot.
func (s *Store) Latest(_ context.Context) (sheets.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.exports) == 0 {
		return sheets.Snapshot{}, false, nil
	}
	return s.exports[len(s.exports)-1], true, nil
}

// Count returns how many snapshots were exported.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exports)
}
