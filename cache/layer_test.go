package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	Value int `json:"value"`
}

func newTestLayer(clock *fakeClock, opts ...Option) (*Layer, *MemoryStore) {
	store := NewMemoryStore()
	store.now = clock.Now
	opts = append([]Option{WithClock(clock.Now), WithGrace(5 * time.Minute)}, opts...)
	return NewLayer(store, zap.NewNop(), opts...), store
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	layer, _ := newTestLayer(newFakeClock())

	var calls atomic.Int32
	compute := func(ctx context.Context) (payload, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		return payload{Value: 42}, nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]payload, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetOrCompute(context.Background(), layer, AnalysisKey(1), time.Minute, compute)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i].Value)
	}
}

func TestGetOrCompute_HitAndExpiry(t *testing.T) {
	clock := newFakeClock()
	layer, _ := newTestLayer(clock)

	n := 0
	compute := func(ctx context.Context) (payload, error) {
		n++
		return payload{Value: n}, nil
	}

	v, err := GetOrCompute(context.Background(), layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Value)

	clock.Advance(30 * time.Second)
	v, err = GetOrCompute(context.Background(), layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Value, "fresh entry served from cache")

	clock.Advance(31 * time.Second)
	v, err = GetOrCompute(context.Background(), layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Value, "expired entry recomputed")
}

func TestGetOrCompute_GraceFallback(t *testing.T) {
	clock := newFakeClock()
	layer, _ := newTestLayer(clock)
	ctx := context.Background()

	_, err := GetOrCompute(ctx, layer, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{Value: 7}, nil
	})
	require.NoError(t, err)

	boom := errors.New("upstream down")
	failing := func(context.Context) (payload, error) { return payload{}, boom }

	clock.Advance(2 * time.Minute)
	v, err := GetOrCompute(ctx, layer, "k", time.Minute, failing)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Value, "stale value served inside grace")

	clock.Advance(5 * time.Minute)
	_, err = GetOrCompute(ctx, layer, "k", time.Minute, failing)
	assert.ErrorIs(t, err, boom)
}

func TestGetOrCompute_FailurePropagatesToWaiters(t *testing.T) {
	layer, _ := newTestLayer(newFakeClock())
	boom := errors.New("compute failed")

	var calls atomic.Int32
	compute := func(context.Context) (payload, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return payload{}, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = GetOrCompute(context.Background(), layer, "k", time.Minute, compute)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestGetOrCompute_CallerCancellation(t *testing.T) {
	layer, _ := newTestLayer(newFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := GetOrCompute(ctx, layer, "slow", time.Minute, func(context.Context) (payload, error) {
		time.Sleep(200 * time.Millisecond)
		return payload{Value: 1}, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Entry, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, *Entry, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) DeleteMatching(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestGetOrCompute_StoreDownComputesDirectly(t *testing.T) {
	layer := NewLayer(failingStore{}, zap.NewNop())

	v, err := GetOrCompute(context.Background(), layer, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{Value: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Value)

	_, err = layer.Invalidate(context.Background(), "k")
	assert.Error(t, err)
}

func TestInvalidate(t *testing.T) {
	clock := newFakeClock()
	layer, store := newTestLayer(clock)
	ctx := context.Background()

	for _, key := range []string{AnalysisKey(1), ReportKey(1, "abc"), AnalysisKey(10), ReportKey(10, "def"), AlertsKey("B01")} {
		_, err := GetOrCompute(ctx, layer, key, time.Minute, func(context.Context) (payload, error) {
			return payload{Value: 1}, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 5, store.Len())

	n, err := layer.Invalidate(ctx, GroupPatterns(1)...)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, store.Len())

	n, err = layer.Invalidate(ctx, "alerts:asin:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = layer.Invalidate(ctx, "*:group:10*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, store.Len())
}

func TestInvalidate_GroupPatternsSkipLocks(t *testing.T) {
	clock := newFakeClock()
	layer, store := newTestLayer(clock)
	ctx := context.Background()

	for _, key := range []string{"lock:analysis:group:1", "lock:report:group:1:abc", AnalysisKey(1), AnalysisKey(12), ReportKey(1, "abc")} {
		require.NoError(t, store.Set(ctx, &Entry{Key: key, Value: []byte(`{}`), StoredAt: clock.Now(), TTL: time.Minute}, time.Minute))
	}

	n, err := layer.Invalidate(ctx, GroupPatterns(1)...)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, key := range []string{"lock:analysis:group:1", "lock:report:group:1:abc", AnalysisKey(12)} {
		_, err := store.Get(ctx, key)
		assert.NoError(t, err, key)
	}
	_, err = store.Get(ctx, AnalysisKey(1))
	assert.ErrorIs(t, err, ErrMiss)
}

type stubLocker struct {
	acquired atomic.Int32
	deny     bool
}

func (s *stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if s.deny {
		return nil, nil
	}
	s.acquired.Add(1)
	return func(context.Context) error { return nil }, nil
}

func TestGetOrCompute_WithLocker(t *testing.T) {
	locker := &stubLocker{}
	layer, _ := newTestLayer(newFakeClock(), WithLocker(locker, time.Second, 0))

	v, err := GetOrCompute(context.Background(), layer, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{Value: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v.Value)
	assert.Equal(t, int32(1), locker.acquired.Load())

	// Lock held elsewhere and no value published: compute anyway once the wait runs out.
	denied := &stubLocker{deny: true}
	layer2, _ := newTestLayer(newFakeClock(), WithLocker(denied, time.Second, 0))
	v, err = GetOrCompute(context.Background(), layer2, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{Value: 10}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, v.Value)
}

func TestGenerateDataHash(t *testing.T) {
	a := GenerateDataHash(map[string]int{"x": 1})
	assert.Len(t, a, 16)
	assert.Equal(t, a, GenerateDataHash(map[string]int{"x": 1}))
	assert.NotEqual(t, a, GenerateDataHash(map[string]int{"x": 2}))
}
