package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned by a Store when the key holds no entry.
var ErrMiss = errors.New("cache: miss")

// Entry is one cached value. Value holds the JSON encoding of the cached object.
type Entry struct {
	Key      string        `json:"key"`
	Value    []byte        `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// WithinGrace reports whether an expired entry may still be served on
// compute failure.
func (e *Entry) WithinGrace(now time.Time, grace time.Duration) bool {
	return now.Sub(e.StoredAt) < e.TTL+grace
}

// Store is the backend a Layer keeps entries in.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	// Set keeps the entry for retention, which is at least its TTL.
	Set(ctx context.Context, entry *Entry, retention time.Duration) error
	// DeleteMatching removes every key matching pattern and returns how many
	// were removed. The pattern is a Redis-style glob.
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

// globPattern turns a plain prefix into a glob. Patterns that already carry
// glob metacharacters are returned unchanged.
func globPattern(pattern string) string {
	if strings.ContainsAny(pattern, `*?[\`) {
		return pattern
	}
	return pattern + "*"
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is an in-process Store used by tests and single-node runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(item.expiresAt) {
		return nil, ErrMiss
	}
	e := item.entry
	e.Value = append([]byte(nil), item.entry.Value...)
	return &e, nil
}

func (m *MemoryStore) Set(_ context.Context, entry *Entry, retention time.Duration) error {
	if retention < entry.TTL {
		retention = entry.TTL
	}
	e := *entry
	e.Value = append([]byte(nil), entry.Value...)

	m.mu.Lock()
	m.items[entry.Key] = memoryItem{entry: e, expiresAt: m.now().Add(retention)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteMatching(_ context.Context, pattern string) (int, error) {
	glob := globPattern(pattern)
	if _, err := path.Match(glob, ""); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key := range m.items {
		if ok, _ := path.Match(glob, key); ok {
			delete(m.items, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of retained entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
