package session

import (
	"sync"
)

// Keys under which session state is persisted.
const (
	TokenKey   = "token"
	HandoffKey = "clinsys.newAppointment.patientId"
)

// Store is the process-wide key/value storage backing a session.
type Store interface {
	Get(key string) (string, bool)
	Put(key, value string) error
	Delete(key string) error
	Close() error
}

// MemoryStore keeps session state in memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
