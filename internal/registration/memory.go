package registration

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL expiry. The bot uses the
// Postgres-backed store in production; this one backs tests and keeps the
// flow usable without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]memorySession
}

type memorySession struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore constructs a MemoryStore whose sessions expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]memorySession),
	}
}

// Get returns the user's session or ErrNoSession. Expired sessions are
// treated as absent and dropped.
func (m *MemoryStore) Get(ctx context.Context, telegramID int64) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[telegramID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	if !entry.expiresAt.After(m.now()) {
		m.mu.Lock()
		delete(m.sessions, telegramID)
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	s := entry.session
	s.Data = copyData(entry.session.Data)
	return &s, nil
}

// Put stores the session and resets its expiry.
func (m *MemoryStore) Put(ctx context.Context, telegramID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[telegramID] = memorySession{
		session: Session{
			Step:      s.Step,
			Data:      copyData(s.Data),
			UpdatedAt: s.UpdatedAt,
		},
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

// Delete removes the session. Absence is not an error.
func (m *MemoryStore) Delete(ctx context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, telegramID)
	return nil
}

// PurgeExpired removes expired sessions and returns how many were dropped.
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	purged := 0
	for id, entry := range m.sessions {
		if !entry.expiresAt.After(now) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged, nil
}
