package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process KV used by tests and by meetingctl when no
// database path is configured.
type Memory struct {
	mu      sync.RWMutex
	data    map[string][]byte
	updated map[string]int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:    make(map[string][]byte),
		updated: make(map[string]int64),
	}
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	m.updated[key] = time.Now().UnixNano()
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.updated, key)
	return nil
}

// List returns the entries whose key starts with prefix, sorted by key.
func (m *Memory) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []Entry
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, Entry{Key: k, Size: len(v), UpdatedAt: m.updated[k]})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
