// Package kvstore provides the abstract key-value persistence the pipeline
// writes through. Two scopes exist: a small synced scope for the reader
// profile and settings, and a larger device-local scope for the translation
// cache and word lists. No transactions are assumed.
package kvstore

import (
	"context"
	"sync"
)

// Store is an async get/set/remove keyed by string. Values are opaque bytes
// (callers JSON-encode what they need).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns all keys with the given prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Scopes bundles the two persistence scopes.
type Scopes struct {
	Synced Store // profile, settings
	Local  Store // cache, word lists
}

// Memory is an in-memory Store for tests and ephemeral runs.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// MemoryScopes returns a Scopes pair backed entirely by memory.
func MemoryScopes() Scopes {
	return Scopes{Synced: NewMemory(), Local: NewMemory()}
}
