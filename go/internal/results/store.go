// Package results persists one final-standings record per finished match
// for the results view to read. The schema is a single serialized player
// list per room key, written once at match completion, with no versioning.
package results

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/flagduel/go/internal/match/events"
)

// ErrNoResults is returned when no outcome was recorded for a room. A
// results view seeing this redirects to the start screen rather than
// erroring.
var ErrNoResults = errors.New("results: no results recorded")

// Store persists final standings by room id.
type Store interface {
	// Save writes the final player list for a room. Saving a room that
	// already has results is a no-op; the first write wins.
	Save(ctx context.Context, roomID string, players []events.PlayerResult) error

	// Load reads the final player list for a room, or ErrNoResults.
	Load(ctx context.Context, roomID string) ([]events.PlayerResult, error)
}

// MemoryStore keeps results for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]events.PlayerResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]events.PlayerResult)}
}

func (s *MemoryStore) Save(ctx context.Context, roomID string, players []events.PlayerResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[roomID]; exists {
		return nil
	}
	stored := make([]events.PlayerResult, len(players))
	copy(stored, players)
	s.results[roomID] = stored
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, roomID string) ([]events.PlayerResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.results[roomID]
	if !ok {
		return nil, ErrNoResults
	}
	out := make([]events.PlayerResult, len(stored))
	copy(out, stored)
	return out, nil
}
