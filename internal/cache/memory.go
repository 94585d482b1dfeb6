package cache

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Store. It backs dev mode and tests;
// production uses S3Store.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[string]map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[string]map[string]Entry),
	}
}

func (m *MemoryStore) Get(_ context.Context, generation, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.generations[generation]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry, ok := entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (m *MemoryStore) Put(_ context.Context, generation, key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.generations[generation]
	if !ok {
		entries = make(map[string]Entry)
		m.generations[generation] = entries
	}
	entries[key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, generation, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entries, ok := m.generations[generation]; ok {
		delete(entries, key)
	}
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, generation string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.generations[generation]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *MemoryStore) Generations(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.generations))
	for name := range m.generations {
		names = append(names, name)
	}
	return names, nil
}

func (m *MemoryStore) DeleteGeneration(_ context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.generations, generation)
	return nil
}
