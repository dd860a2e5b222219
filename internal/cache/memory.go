// internal/cache/memory.go
package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the single-process fallback adapter used when no Redis is
// configured (development, tests).
type MemoryCache struct {
	mtx     sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		entries: make(map[string]memoryEntry),
	}

	// Sweep expired entries every minute
	go mc.sweep()

	return mc
}

func (m *MemoryCache) sweep() {
	for {
		time.Sleep(time.Minute)
		now := time.Now()
		m.mtx.Lock()
		for k, e := range m.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.mtx.Unlock()
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}

	return entry.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mtx.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	m.mtx.Unlock()
	return nil
}

func (m *MemoryCache) Del(ctx context.Context, keys ...string) error {
	m.mtx.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mtx.Unlock()
	return nil
}

func (m *MemoryCache) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	result := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := m.Get(ctx, key)
		if err != nil {
			result[i] = nil
			continue
		}
		result[i] = value
	}
	return result, nil
}

func (m *MemoryCache) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	for key, value := range pairs {
		if err := m.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}
