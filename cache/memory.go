package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry is one cached value with its expiry and a version counter bumped
// on every overwrite. Versions let tests assert the invalidation contract
// without relying on wall-clock TTLs.
type entry struct {
	value     []byte
	expiresAt time.Time
	version   uint64
}

// Memory is an in-process Cache. Safe for concurrent use. Intended for
// unit testing, development, and single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// GetOrLoad returns the live entry for key or loads, stores, and returns
// a fresh value.
func (m *Memory) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && m.now().Before(e.expiresAt) {
		return e.value, nil
	}

	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.entries[key]
	m.entries[key] = entry{
		value:     value,
		expiresAt: m.now().Add(ttl),
		version:   prev.version + 1,
	}
	m.mu.Unlock()

	return value, nil
}

// Invalidate removes the entry for key immediately.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// InvalidatePrefix removes all entries whose key starts with prefix.
func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Version returns the current version counter for key, or zero if absent.
func (m *Memory) Version(key string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key].version
}

// Len returns the number of live and expired entries held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
