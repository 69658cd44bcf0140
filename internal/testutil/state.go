package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/snapshot"
)

// MemoryState is an in-memory boundary and pause flag store.
type MemoryState struct {
	mu       sync.Mutex
	boundary snapshot.Boundary
	paused   bool
	writes   int
}

// NewMemoryState creates an empty state store.
func NewMemoryState() *MemoryState { return &MemoryState{} }

// LastSyncInfo returns the stored boundary.
func (s *MemoryState) LastSyncInfo(context.Context) (snapshot.Boundary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundary, nil
}

// SetLastSyncInfo stores a boundary.
func (s *MemoryState) SetLastSyncInfo(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundary = snapshot.Boundary{Token: token, Date: at}
	s.writes++
	return nil
}

// IsPaused returns the pause flag.
func (s *MemoryState) IsPaused(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, nil
}

// SetPaused sets the pause flag.
func (s *MemoryState) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	return nil
}

// Writes counts SetLastSyncInfo calls.
func (s *MemoryState) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
