package auth

import (
	"context"
	"sync"

	"github.com/cameronmore/nerdauth/sessions"
)

// MemoryUserStore keeps users in process memory. Used for tests and the
// memory database driver.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byId    map[string]sessions.User
	byEmail map[string]string
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byId:    make(map[string]sessions.User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryUserStore) SaveUser(ctx context.Context, u sessions.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return sessions.ErrUserExists
	}
	if _, ok := m.byId[u.UserId]; ok {
		return sessions.ErrUserExists
	}
	m.byId[u.UserId] = u
	m.byEmail[u.Email] = u.UserId
	return nil
}

func (m *MemoryUserStore) LoadUserByUserId(ctx context.Context, id string) (sessions.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byId[id]
	if !ok {
		return sessions.User{}, sessions.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUserStore) LoadUserByEmail(ctx context.Context, email string) (sessions.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return sessions.User{}, sessions.ErrUserNotFound
	}
	return m.byId[id], nil
}

// DeleteUser removes a user. Sessions pointing at it are logged out on their
// next request.
func (m *MemoryUserStore) DeleteUser(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byId[id]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byId, id)
	}
}
