package playback

// Store is the persistence abstraction for sessions.
// Implementations can be in-memory or remote; the Repository serialises
// all access, so a Store does not need its own locking.
type Store interface {
	GetSession(id string) (*Session, bool)
	SetSession(s *Session)
	DeleteSession(id string)
	SurfaceSession(surface string) (string, bool)
	ListSessionIDs() []string
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[string]*Session
	surfaces map[string]string
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		surfaces: make(map[string]string),
	}
}

// GetSession implements Store.GetSession.
func (m *InMemoryStore) GetSession(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// SetSession implements Store.SetSession. The session becomes the active
// one of its surface.
func (m *InMemoryStore) SetSession(s *Session) {
	m.sessions[s.ID()] = s
	m.surfaces[s.Surface()] = s.ID()
}

// DeleteSession implements Store.DeleteSession.
func (m *InMemoryStore) DeleteSession(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if m.surfaces[s.Surface()] == id {
		delete(m.surfaces, s.Surface())
	}
}

// SurfaceSession implements Store.SurfaceSession.
func (m *InMemoryStore) SurfaceSession(surface string) (string, bool) {
	id, ok := m.surfaces[surface]
	return id, ok
}

// ListSessionIDs implements Store.ListSessionIDs.
func (m *InMemoryStore) ListSessionIDs() []string {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
