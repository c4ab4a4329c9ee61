package taskrunner

import (
	"sync"

	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
)

type namedMutexEntry struct {
	mu        sync.Mutex
	cond      *sync.Cond
	locked    bool
	refcount  int
	sharedErr *olperror.ApiError
}

// NamedMutexStorage maps a resource name to a per-name mutex, refcount and
// optional shared error — used to serialise the multi-step cache invariants
// spec calls out (partition removal, quadtree removal, batched partition
// fetch) without taking one global lock.
type NamedMutexStorage struct {
	mu      sync.Mutex
	entries map[string]*namedMutexEntry
}

func NewNamedMutexStorage() *NamedMutexStorage {
	return &NamedMutexStorage{entries: map[string]*namedMutexEntry{}}
}

func (s *NamedMutexStorage) acquireEntry(name string) *namedMutexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &namedMutexEntry{}
		e.cond = sync.NewCond(&e.mu)
		s.entries[name] = e
	}
	e.refcount++
	return e
}

func (s *NamedMutexStorage) releaseEntry(name string, e *namedMutexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refcount--
	if e.refcount == 0 {
		delete(s.entries, name)
	}
}

// Handle is a held (or cancelled-before-held) named lock.
type Handle struct {
	storage *NamedMutexStorage
	name    string
	entry   *namedMutexEntry
	held    bool
}

// Lock acquires the mutex named name, honouring cc's cancellation: a
// cancelled cc aborts the wait (and, if already cancelled, never blocks at
// all) and returns a Handle with Held()==false. Each waiter woken on
// release re-checks cancellation before attempting to take the lock, so a
// cancelled waiter never blocks the others behind it.
func (s *NamedMutexStorage) Lock(cc *olpclient.CancellationContext, name string) *Handle {
	e := s.acquireEntry(name)
	h := &Handle{storage: s, name: name, entry: e}

	if cc != nil {
		// Wake this name's waiters when cc is cancelled, so a blocked waiter
		// re-checks cancellation without waiting for the holder to unlock.
		cc.ExecuteOrCancelled(func() func() {
			return func() {
				e.mu.Lock()
				e.cond.Broadcast()
				e.mu.Unlock()
			}
		}, func() {})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.locked {
		if cc != nil && cc.IsCancelled() {
			s.releaseEntry(name, e)
			return h
		}
		e.cond.Wait()
	}
	if cc != nil && cc.IsCancelled() {
		s.releaseEntry(name, e)
		return h
	}
	e.locked = true
	h.held = true
	return h
}

// Held reports whether Lock actually acquired the mutex.
func (h *Handle) Held() bool { return h.held }

// Unlock releases a held lock and broadcasts to any waiters on the same
// name. A no-op on a Handle that never acquired the lock.
func (h *Handle) Unlock() {
	if !h.held {
		return
	}
	h.entry.mu.Lock()
	h.entry.locked = false
	h.entry.mu.Unlock()
	h.entry.cond.Broadcast()
	h.storage.releaseEntry(h.name, h.entry)
	h.held = false
}

// SetSharedError publishes err on this name so other threads waiting on (or
// later acquiring) the same name can read it back via SharedError — the
// mechanism that lets the goroutine that "wins" an expensive fetch
// distribute its failure to the others queued behind it.
func (h *Handle) SetSharedError(err *olperror.ApiError) {
	h.entry.mu.Lock()
	h.entry.sharedErr = err
	h.entry.mu.Unlock()
}

// SharedError returns the last error SetSharedError published on this name.
func (h *Handle) SharedError() *olperror.ApiError {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	return h.entry.sharedErr
}
