package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore — in-memory хранилище сессий на LRU с TTL.
// Хранилище по умолчанию для одного экземпляра консоли.
type MemoryStore struct {
	cache *expirable.LRU[string, Credential]
}

// NewMemoryStore создаёт хранилище на maxSize сессий с временем жизни ttl.
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, Credential](maxSize, nil, ttl),
	}
}

// Load возвращает копию записи.
func (m *MemoryStore) Load(_ context.Context, key string) (*Credential, error) {
	cred, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

// Save сохраняет копию записи.
func (m *MemoryStore) Save(_ context.Context, key string, cred *Credential) error {
	m.cache.Add(key, *cred)
	return nil
}

// Delete удаляет запись.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len возвращает число сессий в хранилище.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
