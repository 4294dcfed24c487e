package state

import (
	"context"
	"sync"
)

// MemoryStore 以内存方式保存用户状态，主要用于测试与单机调试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]UserIdentity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]UserIdentity)}
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, userID string) (UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.records[userID]
	if !ok {
		return UserIdentity{}, notFound(userID)
	}
	return identity, nil
}

// Set 实现 Store 接口。
func (m *MemoryStore) Set(_ context.Context, identity UserIdentity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[identity.UserID] = identity
	return identity.UserID, nil
}

// Unset 实现 Store 接口。
func (m *MemoryStore) Unset(_ context.Context, identity UserIdentity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[identity.UserID]; !ok {
		return "", notFound(identity.UserID)
	}
	delete(m.records, identity.UserID)
	return identity.UserID, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
