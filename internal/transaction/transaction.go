// Package transaction owns the transaction lifecycle: point-in-time
// snapshots, consistent reads, idle expiry, conflict detection and the
// terminal-state bookkeeping of commit and rollback.
package transaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/store"
	"github.com/firelite/firelite-backend/internal/utils/errors"
)

// IdleTimeout is how long a transaction may exist before any lookup of it
// lazily rolls it back. Measured from creation, matching the service.
const IdleTimeout = 60 * time.Second

// State is one transaction. globalSnapshot is the deep-copied view of the
// whole store at creation time and is the basis for snapshot isolation;
// readSnapshot records, per path, the value this transaction actually
// observed (nil meaning read-as-missing) and is the basis for conflict
// detection at commit.
type State struct {
	ID        string
	ReadOnly  bool
	StartTime time.Time

	deadline       time.Time
	globalSnapshot map[string]*document.Document
	readSnapshot   map[string]*document.Document

	Committed  bool
	RolledBack bool
}

// Terminal reports whether the transaction reached a final state. No
// transition leaves a terminal state.
func (s *State) Terminal() bool {
	return s.Committed || s.RolledBack
}

// Manager owns the table of live transactions. All methods are safe for
// concurrent use.
type Manager struct {
	mu    sync.Mutex
	store store.Storer
	txns  map[string]*State

	// storeMu orders store mutation against snapshot creation. Commit
	// application holds the write side; Create holds the read side while
	// copying the store, so a snapshot never observes half of a batch.
	storeMu sync.RWMutex

	// Now is the clock; tests override it to drive expiry.
	Now func() time.Time
}

// NewManager creates a manager over the given store.
func NewManager(st store.Storer) *Manager {
	return &Manager{
		store: st,
		txns:  map[string]*State{},
		Now:   time.Now,
	}
}

// StoreLock returns the lock ordering store mutation against snapshot
// creation. A committer must hold the write side across conflict
// detection and batch application.
func (m *Manager) StoreLock() *sync.RWMutex {
	return &m.storeMu
}

// Create starts a transaction: allocates an id, deep-copies every document
// currently in the store into the global snapshot and arms the idle
// deadline. There is no background sweep; expiry is checked lazily on
// lookup, and expired leftovers are purged whenever a transaction is
// created.
func (m *Manager) Create(readOnly bool) *State {
	m.storeMu.RLock()
	snapshot := m.store.All()
	m.storeMu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	m.sweepLocked(now)

	state := &State{
		ID:             uuid.New().String(),
		ReadOnly:       readOnly,
		StartTime:      now,
		deadline:       now.Add(IdleTimeout),
		globalSnapshot: snapshot,
		readSnapshot:   map[string]*document.Document{},
	}
	m.txns[state.ID] = state
	return state
}

// sweepLocked releases every expired transaction, so the snapshot of an
// abandoned transaction does not outlive its deadline for long.
func (m *Manager) sweepLocked(now time.Time) {
	for _, state := range m.txns {
		if !state.Terminal() && now.After(state.deadline) {
			state.RolledBack = true
			m.releaseLocked(state)
		}
	}
}

// Get returns the transaction for id, or nil for unknown ids. A live
// transaction whose deadline has elapsed is rolled back here, on lookup.
func (m *Manager) Get(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(id)
}

func (m *Manager) getLocked(id string) *State {
	state, ok := m.txns[id]
	if !ok {
		return nil
	}
	if !state.Terminal() && m.Now().After(state.deadline) {
		state.RolledBack = true
		m.releaseLocked(state)
	}
	return state
}

// Active resolves id to a live transaction, failing with an
// invalid-argument error for unknown, expired or already-terminal ids.
func (m *Manager) Active(id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeLocked(id)
}

func (m *Manager) activeLocked(id string) (*State, error) {
	state := m.getLocked(id)
	if state == nil {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Unknown transaction %q", id)}
	}
	if state.Committed {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Transaction %q has already been committed", id)}
	}
	if state.RolledBack {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Transaction %q is expired or has been rolled back", id)}
	}
	return state, nil
}

// Read serves one path from the transaction's snapshot. The first read of
// a path copies it out of the global snapshot (never the live store) and
// records it; re-reads return the recorded value unchanged, so every read
// inside one transaction observes the same point-in-time view.
func (m *Manager) Read(id string, path string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.activeLocked(id)
	if err != nil {
		return nil, err
	}

	if observed, ok := state.readSnapshot[path]; ok {
		return document.Copy(observed), nil
	}

	doc := state.globalSnapshot[path]
	state.readSnapshot[path] = document.Copy(doc)
	return document.Copy(doc), nil
}

// DetectConflicts compares every path this transaction read against the
// current live store using full structural equality. Any mismatch means
// something this transaction observed has changed since it started, and
// the commit must be discarded.
func (m *Manager) DetectConflicts(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.activeLocked(id)
	if err != nil {
		return err
	}

	for path, observed := range state.readSnapshot {
		live, ok := m.store.Get(path)
		if !ok {
			live = nil
		}
		if !document.Equal(observed, live) {
			return &errors.ConflictError{Msg: fmt.Sprintf("Transaction %q aborted: document %q changed since it was read", id, path)}
		}
	}
	return nil
}

// Commit marks the transaction committed and releases it. The caller is
// responsible for having applied the writes first.
func (m *Manager) Commit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.activeLocked(id)
	if err != nil {
		return err
	}
	state.Committed = true
	m.releaseLocked(state)
	return nil
}

// Rollback marks the transaction rolled back and releases it.
func (m *Manager) Rollback(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.activeLocked(id)
	if err != nil {
		return err
	}
	state.RolledBack = true
	m.releaseLocked(state)
	return nil
}

// Abort rolls the transaction back if it is still live. Used when a
// transactional commit fails part-way; a failed commit attempt is
// terminal.
func (m *Manager) Abort(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.activeLocked(id)
	if err != nil {
		return
	}
	state.RolledBack = true
	m.releaseLocked(state)
}

func (m *Manager) releaseLocked(state *State) {
	state.globalSnapshot = nil
	state.readSnapshot = nil
	delete(m.txns, state.ID)
}
