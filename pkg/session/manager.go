package session

import (
	"sync"
	"time"
)

// Manager looks up or lazily creates Sessions by logical id. Idle eviction is
// an external concern; Manager only tracks LastAccess so an external sweeper
// can decide what to evict via Evict.
type Manager struct {
	mu   sync.Mutex
	byID map[string]*entry
}

type entry struct {
	session    *Session
	lastAccess time.Time
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{byID: make(map[string]*entry)}
}

// GetOrCreate returns the existing session for id, or calls create and stores
// its result. create is invoked at most once per id even under concurrent callers.
func (m *Manager) GetOrCreate(id string, create func() (*Session, error)) (*Session, error) {
	m.mu.Lock()
	if e, ok := m.byID[id]; ok {
		e.lastAccess = time.Now()
		m.mu.Unlock()
		return e.session, nil
	}
	m.mu.Unlock()

	sess, err := create()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[id]; ok {
		e.lastAccess = time.Now()
		return e.session, nil
	}
	m.byID[id] = &entry{session: sess, lastAccess: time.Now()}
	return sess, nil
}

// Get returns the session for id, if one exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.session, true
}

// Remove drops id from the manager without closing its upstream conversation;
// callers that want a clean shutdown should call Session.Close first.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// IdleSince returns the ids whose last access is older than d, for an
// external sweeper to evict.
func (m *Manager) IdleSince(d time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-d)
	var ids []string
	for id, e := range m.byID {
		if e.lastAccess.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
