package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Result is the outcome of one atomic admission attempt.
type Result struct {
	Allowed bool
	// Window indexes the first window that refused the request.
	Window int
	// Oldest is the timestamp of the oldest entry in the refusing window.
	Oldest time.Time
	// Used holds the per-window count after the attempt, for windows evaluated.
	Used []int
}

// Store executes the sliding-window-log check-and-increment atomically.
type Store interface {
	Admit(ctx context.Context, keyID string, windows []Window, weight int, now time.Time) (Result, error)
	Usage(ctx context.Context, keyID string, windows []Window, now time.Time) ([]int, error)
}

// MemoryStore keeps window logs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]time.Time)}
}

func (m *MemoryStore) Admit(_ context.Context, keyID string, windows []Window, weight int, now time.Time) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := make([]int, 0, len(windows))
	for i, w := range windows {
		key := windowKey(keyID, w)
		log := m.prune(key, now.Add(-w.Size))
		used = append(used, len(log))
		if len(log)+weight > w.Limit {
			oldest := now
			if len(log) > 0 {
				oldest = log[0]
			}
			return Result{Allowed: false, Window: i, Oldest: oldest, Used: used}, nil
		}
	}

	for i, w := range windows {
		key := windowKey(keyID, w)
		for j := 0; j < weight; j++ {
			m.logs[key] = append(m.logs[key], now)
		}
		used[i] += weight
	}
	return Result{Allowed: true, Used: used}, nil
}

func (m *MemoryStore) Usage(_ context.Context, keyID string, windows []Window, now time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := make([]int, len(windows))
	for i, w := range windows {
		used[i] = len(m.prune(windowKey(keyID, w), now.Add(-w.Size)))
	}
	return used, nil
}

// prune drops entries at or before cutoff. Callers hold mu.
func (m *MemoryStore) prune(key string, cutoff time.Time) []time.Time {
	log := m.logs[key]
	idx := sort.Search(len(log), func(i int) bool { return log[i].After(cutoff) })
	log = log[idx:]
	if len(log) == 0 {
		delete(m.logs, key)
		return nil
	}
	m.logs[key] = log
	return log
}
