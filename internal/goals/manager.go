package goals

import (
	"sync"

	"github.com/arnold/gutgoals-api/internal/kv"
	"github.com/google/uuid"
)

// Manager hands out one Store per user over a shared backend, so every
// request for the same user goes through the same lock. Stores are kept
// for the life of the Manager: the map grows by one small entry per user
// that has made a request and is bounded by the number of accounts.
type Manager struct {
	backend kv.Store
	opts    []Option

	mu     sync.Mutex
	stores map[uuid.UUID]*Store
}

func NewManager(backend kv.Store, opts ...Option) *Manager {
	return &Manager{
		backend: backend,
		opts:    opts,
		stores:  make(map[uuid.UUID]*Store),
	}
}

// UserPrefix is the key prefix for everything stored on behalf of userID.
func UserPrefix(userID uuid.UUID) string {
	return "user:" + userID.String() + ":"
}

// UserKV is the backend scoped to userID.
func (m *Manager) UserKV(userID uuid.UUID) kv.Store {
	return kv.Prefixed(m.backend, UserPrefix(userID))
}

func (m *Manager) For(userID uuid.UUID) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[userID]; ok {
		return s
	}
	s := NewStore(m.UserKV(userID), m.opts...)
	m.stores[userID] = s
	return s
}

// WithUser runs fn against userID's key space while holding the same lock
// as their goal store. Anything else kept under the user's prefix, like the
// log history, goes through here so its writes never interleave with goal
// updates or with each other.
func (m *Manager) WithUser(userID uuid.UUID, fn func(store kv.Store) error) error {
	s := m.For(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.kv)
}

// Forget drops the cached store for userID. Persisted data is untouched.
// Only call it when no request for userID can be in flight, such as after
// the account is deleted; a caller still holding the old store would
// otherwise lock a different mutex than new callers.
func (m *Manager) Forget(userID uuid.UUID) {
	m.mu.Lock()
	delete(m.stores, userID)
	m.mu.Unlock()
}
