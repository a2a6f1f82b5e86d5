// Package events is the notification boundary between the write path and
// the watch/listen subsystem: every committed write is announced as
// (path, newDocumentOrNil), nil meaning the document was deleted.
package events

import (
	"sync"

	"github.com/firelite/firelite-backend/internal/document"
)

//EventPublisher is an abstraction over the commit event feed
type EventPublisher interface {
	Publish(path string, doc *document.Document)
}

// Observer receives one committed write. doc is nil for deletions.
type Observer func(path string, doc *document.Document)

// Bus is an in-process EventPublisher fanning every commit event out to
// all subscribed observers, in subscription order.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

//NewBus -_-
func NewBus() *Bus {
	return &Bus{}
}

//Subscribe Registers an observer for all subsequent commit events.
func (b *Bus) Subscribe(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observers = append(b.observers, obs)
}

//Publish Publish one committed write to all observers.
func (b *Bus) Publish(path string, doc *document.Document) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, obs := range observers {
		obs(path, doc)
	}
}

//NopPublisher NOOP publisher for setups without a watch subsystem.
type NopPublisher struct{}

//Publish Publish one committed write. NOOP.
func (NopPublisher) Publish(path string, doc *document.Document) {}
