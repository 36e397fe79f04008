package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"competitive-insights/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func testTiers() map[string]Tier {
	return map[string]Tier{
		"test": {Name: "test", Windows: []Window{{Name: "minute", Limit: 5, Size: time.Minute}}},
		"multi": {Name: "multi", Windows: []Window{
			{Name: "minute", Limit: 3, Size: time.Minute},
			{Name: "hour", Limit: 4, Size: time.Hour},
		}},
	}
}

func newTestLimiter(clock *fakeClock, opts ...Option) *Limiter {
	opts = append([]Option{WithTiers(testTiers()), WithClock(clock.Now)}, opts...)
	return NewLimiter(NewMemoryStore(), zap.NewNop(), opts...)
}

func TestAllow_SlidingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "key-1", "test", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "key-1", "test", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "minute", d.Window)
	assert.Equal(t, time.Minute, d.RetryAfter)

	clock.Advance(20 * time.Second)
	d, err = l.Allow(ctx, "key-1", "test", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	other, err := l.Allow(ctx, "key-2", "test", 1)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(40 * time.Second)
	d, err = l.Allow(ctx, "key-1", "test", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAllow_Weight(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	d, err := l.Allow(ctx, "k", "test", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "k", "test", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "3 + 3 exceeds 5")

	d, err = l.Allow(ctx, "k", "test", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "3 + 2 fits exactly")
}

func TestAllow_AllWindowsChecked(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "k", "multi", 1)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "k", "multi", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "minute", d.Window)

	clock.Advance(time.Minute)
	d, err = l.Allow(ctx, "k", "multi", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "k", "multi", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "hour", d.Window)
	assert.Equal(t, 59*time.Minute, d.RetryAfter)

	status, err := l.Status(ctx, "k", "multi")
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, WindowStatus{Window: "minute", Limit: 3, Used: 1, Remaining: 2}, status[0])
	assert.Equal(t, WindowStatus{Window: "hour", Limit: 4, Used: 4, Remaining: 0}, status[1])
}

func TestAllow_Concurrent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := newTestLimiter(clock)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared", "test", 1)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}

func TestAllow_Validation(t *testing.T) {
	l := newTestLimiter(&fakeClock{now: time.Now()})
	ctx := context.Background()

	_, err := l.Allow(ctx, "", "test", 1)
	assert.True(t, models.IsValidation(err))
	_, err = l.Allow(ctx, "k", "nope", 1)
	assert.True(t, models.IsValidation(err))
	_, err = l.Allow(ctx, "k", "test", 0)
	assert.True(t, models.IsValidation(err))
	_, err = l.Allow(ctx, "k", "test", 6)
	assert.True(t, models.IsValidation(err))
}

func TestWeight(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), zap.NewNop())
	assert.Equal(t, 50, l.Weight(OpNarrative))
	assert.Equal(t, 1, l.Weight("unknown"))

	d, err := l.AllowOperation(context.Background(), "k", TierFree, OpNarrative)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 10, d.Remaining)
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestAllow_StoreUnavailable(t *testing.T) {
	client := unreachableRedis()
	defer client.Close()

	closed := NewLimiter(NewRedisStore(client), zap.NewNop(), WithTiers(testTiers()))
	d, err := closed.Allow(context.Background(), "k", "test", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "fail-closed by default")
	assert.True(t, d.Degraded)

	open := NewLimiter(NewRedisStore(client), zap.NewNop(), WithTiers(testTiers()), WithFailOpen(true))
	d, err = open.Allow(context.Background(), "k", "test", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)

	_, err = closed.Status(context.Background(), "k", "test")
	assert.True(t, models.IsDependencyUnavailable(err))
}
