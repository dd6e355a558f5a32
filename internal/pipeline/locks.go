package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// invoiceLocks serializes commits per invoice. Pages of one document are
// processed concurrently, but only one page's commit may apply at a time;
// whichever commit runs last wins whole (last-write-wins, never a merge).
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// lock acquires the per-invoice mutex and returns its release func. Entries
// are refcounted so the map does not grow with invoice history.
func (l *invoiceLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
