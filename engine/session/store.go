// Package session tracks per-conversation filter state. Each session holds
// the merged filter built up over turns plus the id list of the last result
// page, which grounds ordinal references ("the second one").
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
)

// ErrNotFound is returned by stores for a session id with no stored state.
var ErrNotFound = errors.New("session not found")

// State is the durable part of a session.
type State struct {
	Filter    domain.Filter `json:"filter"`
	LastIDs   []int         `json:"last_ids"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store persists session state. Implementations must be safe for concurrent
// use; the Manager serializes per session but different sessions hit the
// store in parallel.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, st State) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = st
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
