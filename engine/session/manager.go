package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/query"
)

// Mode selects how an incoming filter delta relates to the session's
// accumulated filter.
type Mode string

const (
	// ModeReplace discards the accumulated filter and starts over from the delta.
	ModeReplace Mode = "replace"
	// ModeRefine layers the delta over the accumulated filter.
	ModeRefine Mode = "refine"
)

var (
	// ErrInvalidMode marks a mode outside the enum.
	ErrInvalidMode = errors.New("invalid search mode")
	// ErrOrdinalOutOfRange marks an ordinal reference past the last result page.
	ErrOrdinalOutOfRange = errors.New("ordinal out of range")
)

// OrdinalError names the offending 1-based position and how many results the
// session's last page actually held.
type OrdinalError struct {
	Position  int
	Available int
}

func (e *OrdinalError) Error() string {
	return fmt.Sprintf("ordinal %d out of range: last result page has %d entries", e.Position, e.Available)
}

func (e *OrdinalError) Unwrap() error { return ErrOrdinalOutOfRange }

// Outcome is one applied search turn: the executed page plus the merged
// filter now active for the session.
type Outcome struct {
	Result query.Result
	Filter domain.Filter
}

// Manager serializes filter-state updates per session. Operations on the same
// session are atomic merge-execute-store sequences; different sessions run
// concurrently.
type Manager struct {
	exec  *query.Executor
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a Manager executing against exec and persisting to store.
func NewManager(exec *query.Executor, store Store) *Manager {
	return &Manager{exec: exec, store: store, locks: make(map[string]*sync.Mutex)}
}

// lock returns the per-session mutex, creating it on first use. Lock entries
// are never removed; the map grows with the distinct session count, which is
// bounded by the conversation load.
func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Apply runs one search turn: merge the delta per mode, execute, persist the
// merged filter and the returned id order. Refining a fresh session is the
// same as replacing, since there is nothing to layer over.
func (m *Manager) Apply(ctx context.Context, sessionID string, delta domain.Filter, mode Mode) (Outcome, error) {
	if mode != ModeReplace && mode != ModeRefine {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err := delta.Validate(); err != nil {
		return Outcome{}, err
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Outcome{}, err
	}

	merged := delta
	if mode == ModeRefine {
		merged = st.Filter.Merge(delta)
	}

	res := m.exec.Search(merged)

	ids := make([]int, len(res.Records))
	for i, r := range res.Records {
		ids[i] = r.ID
	}
	st = State{Filter: merged, LastIDs: ids, UpdatedAt: time.Now().UTC()}
	if err := m.store.Save(ctx, sessionID, st); err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: res, Filter: merged}, nil
}

// ResolveOrdinals maps 1-based positions in the session's last result page to
// vehicle ids, preserving the caller's order. A session with no prior search
// has an empty page, so any ordinal is out of range.
func (m *Manager) ResolveOrdinals(ctx context.Context, sessionID string, positions []int) ([]int, error) {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	ids := make([]int, len(positions))
	for i, pos := range positions {
		if pos < 1 || pos > len(st.LastIDs) {
			return nil, &OrdinalError{Position: pos, Available: len(st.LastIDs)}
		}
		ids[i] = st.LastIDs[pos-1]
	}
	return ids, nil
}

// Filter returns the session's accumulated filter, zero when the session is
// unknown.
func (m *Manager) Filter(ctx context.Context, sessionID string) (domain.Filter, error) {
	st, err := m.store.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return domain.Filter{}, nil
	}
	if err != nil {
		return domain.Filter{}, err
	}
	return st.Filter, nil
}

// Reset drops the session's accumulated state.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()
	return m.store.Delete(ctx, sessionID)
}
