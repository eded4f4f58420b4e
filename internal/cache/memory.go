package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	retention time.Duration
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. Expired entries stay readable through
// GetIgnoringExpiry until they are older than retention and get swept.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]Entry),
		retention: retention,
		now:       time.Now,
	}
}

// SetClock replaces the store's time source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.Expired(m.now()) {
		return Entry{}, false, nil
	}
	return clone(e), true, nil
}

func (m *MemoryStore) GetIgnoringExpiry(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return clone(e), true, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, jobs []model.Job, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = Entry{
		Key:       key,
		Jobs:      slices.Clone(jobs),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (m *MemoryStore) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) SweepExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.retention)
	removed := 0
	for key, e := range m.entries {
		if e.Expired(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }

func clone(e Entry) Entry {
	e.Jobs = slices.Clone(e.Jobs)
	return e
}
