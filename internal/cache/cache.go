// Package cache holds serialized catalog reads (the full list, best rated)
// between writes. Every book write invalidates the whole cache, so entries
// never outlive the data they were built from by more than one write.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores opaque values by key.
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every entry.
	Invalidate(ctx context.Context) error
	Close() error
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set is a no-op.
func (Noop) Set(context.Context, string, []byte) error { return nil }

// Invalidate is a no-op.
func (Noop) Invalidate(context.Context) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }

// Memory is an in-process cache with a fixed TTL.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory creates an in-process cache.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expires: m.now().Add(m.ttl)}
	return nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.entries)
	return nil
}

// Close implements Cache.
func (m *Memory) Close() error {
	return m.Invalidate(context.Background())
}
