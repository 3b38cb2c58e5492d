package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache implements Store inside the process. Expired entries are
// dropped lazily on access.
type MemoryCache struct {
	prefix string
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache(prefix string) *MemoryCache {
	return &MemoryCache{
		prefix:  prefix,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) lookup(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[m.prefix+key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		m.mu.Lock()
		delete(m.entries, m.prefix+key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (m *MemoryCache) store(key string, data []byte, ttl time.Duration) {
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[m.prefix+key] = entry
	m.mu.Unlock()
}

func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.lookup(key)
	if !ok {
		return ErrCacheNotFound
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	m.store(key, data, ttl)
	return nil
}

func (m *MemoryCache) GetString(ctx context.Context, key string) (string, error) {
	data, ok := m.lookup(key)
	if !ok {
		return "", ErrCacheNotFound
	}
	return string(data), nil
}

func (m *MemoryCache) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.store(key, []byte(value), ttl)
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, m.prefix+key)
	}
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.lookup(key)
	return ok, nil
}

// InvalidatePattern accepts the same glob syntax as Redis SCAN MATCH for the
// common cases (*, ?, [...]).
func (m *MemoryCache) InvalidatePattern(ctx context.Context, pattern string) error {
	full := m.prefix + pattern
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		matched, err := path.Match(full, key)
		if err != nil {
			return fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
		}
		if matched {
			delete(m.entries, key)
		}
	}
	return nil
}
