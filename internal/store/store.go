// Package store is the path-keyed document storage the engine runs on.
// Every call is linearizable on its own; cross-call consistency (commit
// critical sections, snapshots) is the responsibility of the callers.
package store

import (
	"sync"

	"github.com/firelite/firelite-backend/internal/document"
)

// Storer is a storage abstraction layer interface. Implementations own
// their documents: Set must store a copy of its argument, and Get and All
// must return copies the caller may keep and mutate freely.
type Storer interface {
	Get(path string) (*document.Document, bool)
	Set(path string, doc *document.Document)
	Delete(path string)
	Exists(path string) bool
	All() map[string]*document.Document
}

// MemoryStore keeps all documents in process memory. Safe for concurrent
// use. There is deliberately no durability; the emulator serves local
// development and tests only.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*document.Document
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]*document.Document{}}
}

// Get returns a copy of the document at path, if any. Copies keep callers
// from mutating stored state behind the store's back.
func (s *MemoryStore) Get(path string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	return document.Copy(doc), true
}

// Set stores a copy of doc at path, replacing any previous document.
func (s *MemoryStore) Set(path string, doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[path] = document.Copy(doc)
}

// Delete removes the document at path if present.
func (s *MemoryStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, path)
}

// Exists reports whether a document is stored at path.
func (s *MemoryStore) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[path]
	return ok
}

// All returns a copy of every stored document, taken under one lock so the
// result is a consistent point-in-time view. This is what transaction
// snapshots are built from.
func (s *MemoryStore) All() map[string]*document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*document.Document, len(s.docs))
	for path, doc := range s.docs {
		out[path] = document.Copy(doc)
	}
	return out
}
