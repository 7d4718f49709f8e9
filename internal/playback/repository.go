package playback

import "sync"

// Repository is the concurrency-safe registry of playback sessions. Each
// player surface has at most one active session.
type Repository interface {
	// Put registers s as the active session of its surface and returns the
	// session it displaced, if any. The displaced session is removed.
	Put(s *Session) (previous *Session)

	// Get returns the session with the given id.
	Get(id string) (*Session, bool)

	// Remove unregisters the session with the given id and returns it.
	Remove(id string) (*Session, bool)

	// ActiveCount returns the number of sessions that are not closed.
	// Used for metrics.
	ActiveCount() int
}

// InMemoryRepository is a concurrency-safe Repository backed by a Store;
// by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Put implements Repository.Put.
func (r *InMemoryRepository) Put(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var previous *Session
	if id, ok := r.store.SurfaceSession(s.Surface()); ok && id != s.ID() {
		previous, _ = r.store.GetSession(id)
		r.store.DeleteSession(id)
	}
	r.store.SetSession(s)
	return previous
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSession(id)
}

// Remove implements Repository.Remove.
func (r *InMemoryRepository) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		return nil, false
	}
	r.store.DeleteSession(id)
	return s, true
}

// ActiveCount implements Repository.ActiveCount.
func (r *InMemoryRepository) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && s.State() != StateClosed {
			n++
		}
	}
	return n
}
