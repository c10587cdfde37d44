package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

// MemorySessionStore keeps sessions in process. Used when Redis is not
// configured; sessions do not survive a restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

var _ port.SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	m.sessions[session.Token] = session
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, token string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[token]
	if !ok || m.expired(session) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

func (m *MemorySessionStore) expired(s domain.Session) bool {
	return !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt)
}

// sweep drops expired sessions. Caller holds mu.
func (m *MemorySessionStore) sweep() {
	for token, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, token)
		}
	}
}
