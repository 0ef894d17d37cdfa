package cache

import (
	"context"
	"sync"
	"time"

	"articleforge/internal/core"
)

type memoryEntry struct {
	record  *core.EnhancementRecord
	expires time.Time // zero means no expiry
}

// Memory is a process-local cache. Concurrent writers to one key race and
// the last write wins; entries are immutable so either value is correct.
type Memory struct {
	entries sync.Map
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (*core.EnhancementRecord, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(memoryEntry)
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		m.entries.Delete(key)
		return nil, false
	}
	return entry.record.Clone(), true
}

func (m *Memory) Put(_ context.Context, key string, record *core.EnhancementRecord, ttl time.Duration) {
	if !cacheable(record) {
		return
	}
	entry := memoryEntry{record: record.Clone()}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.entries.Store(key, entry)
}

func (m *Memory) Name() string { return BackendMemory }

// Len returns the number of stored entries, including expired ones.
func (m *Memory) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
