package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dastankg/orimi-merchen/internal/models"
)

// MemoryStore holds sessions in memory for development and tests
type MemoryStore struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
	}
}

func (m *MemoryStore) Get(ctx context.Context, identity string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[identity]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, session *models.Session) error {
	if session == nil || session.Identity == "" {
		return fmt.Errorf("session identity is required")
	}
	if !session.State.Valid() {
		return fmt.Errorf("invalid session state %q", session.State)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored := session.Clone()
	stored.PendingPhoto = ""
	if existing, ok := m.sessions[session.Identity]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.sessions[session.Identity] = stored
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
