package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisLimiter(t *testing.T, mr *miniredis.Miniredis, clock *fakeClock) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(NewRedisStore(client), zap.NewNop(), WithTiers(testTiers()), WithClock(clock.Now))
}

func TestRedisStore_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newRedisLimiter(t, mr, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "key-1", "test", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.False(t, d.Degraded)
		assert.Equal(t, 4-i, d.Remaining)
	}

	clock.Advance(5 * time.Second)
	d, err := l.Allow(ctx, "key-1", "test", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "minute", d.Window)
	assert.Equal(t, 55*time.Second, d.RetryAfter)

	status, err := l.Status(ctx, "key-1", "test")
	require.NoError(t, err)
	assert.Equal(t, []WindowStatus{{Window: "minute", Limit: 5, Used: 5, Remaining: 0}}, status,
		"denied calls record nothing")

	clock.Advance(55 * time.Second)
	d, err = l.Allow(ctx, "key-1", "test", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	assert.True(t, mr.Exists("rate_limit:{key-1}:minute"))
}

func TestRedisStore_AllWindowsChecked(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := newRedisLimiter(t, mr, clock)
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
	assert.False(t, d.Allowed, "minute window has room but hour window is full")
	assert.Equal(t, "hour", d.Window)
	assert.Equal(t, 59*time.Minute, d.RetryAfter)

	status, err := l.Status(ctx, "k", "multi")
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, WindowStatus{Window: "minute", Limit: 3, Used: 1, Remaining: 2}, status[0])
	assert.Equal(t, WindowStatus{Window: "hour", Limit: 4, Used: 4, Remaining: 0}, status[1])

	members, err := mr.ZMembers("rate_limit:{k}:hour")
	require.NoError(t, err)
	assert.Len(t, members, 4)
}

func TestRedisStore_Weight(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newRedisLimiter(t, mr, &fakeClock{now: time.Unix(1700000000, 0)})
	ctx := context.Background()

	tests := []struct {
		weight  int
		allowed bool
	}{
		{3, true},
		{3, false},
		{2, true},
		{1, false},
	}
	for i, tt := range tests {
		d, err := l.Allow(ctx, "k", "test", tt.weight)
		require.NoError(t, err)
		assert.Equal(t, tt.allowed, d.Allowed, "call %d weight %d", i+1, tt.weight)
	}
}

func TestRedisStore_SharedAcrossLimiters(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	first := newRedisLimiter(t, mr, clock)
	second := newRedisLimiter(t, mr, clock)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		l := first
		if i%2 == 1 {
			l = second
		}
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

	status, err := second.Status(context.Background(), "shared", "test")
	require.NoError(t, err)
	assert.Equal(t, 5, status[0].Used)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newRedisLimiter(t, mr, &fakeClock{now: time.Unix(1700000000, 0)})
	mr.Close()

	d, err := l.Allow(context.Background(), "k", "test", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.Degraded)
}
