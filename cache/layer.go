// Package cache provides the TTL cache with single-flight computation used for
// analysis results, reports and alert lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"competitive-insights/metrics"
	"competitive-insights/models"
)

// Layer de-duplicates concurrent computations per key and serves expired
// values within the grace period when a computation fails.
type Layer struct {
	store     Store
	group     singleflight.Group
	grace     time.Duration
	opTimeout time.Duration
	locker    Locker
	lockTTL   time.Duration
	lockWait  time.Duration
	epoch     atomic.Uint64
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithGrace sets how long past its TTL an entry may be served on compute failure.
func WithGrace(d time.Duration) Option {
	return func(l *Layer) { l.grace = d }
}

// WithOpTimeout bounds every store call.
func WithOpTimeout(d time.Duration) Option {
	return func(l *Layer) { l.opTimeout = d }
}

// WithLocker extends single-flight across processes. Callers that lose the lock
// poll the store for up to wait before computing themselves.
func WithLocker(locker Locker, ttl, wait time.Duration) Option {
	return func(l *Layer) {
		l.locker = locker
		l.lockTTL = ttl
		l.lockWait = wait
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// NewLayer creates a Layer over store.
func NewLayer(store Store, logger *zap.Logger, opts ...Option) *Layer {
	l := &Layer{
		store:     store,
		grace:     5 * time.Minute,
		opTimeout: 500 * time.Millisecond,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type flightResult struct {
	data  []byte
	stale bool
}

// GetOrCompute returns the cached value for key, computing it with compute when
// absent or expired. Concurrent callers for the same key share one computation.
// ttl is chosen by the caller per resource class.
func GetOrCompute[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if entry := l.lookup(ctx, key); entry != nil && entry.Fresh(l.now()) {
		var v T
		if err := json.Unmarshal(entry.Value, &v); err == nil {
			metrics.CacheRequest(metrics.CacheHit)
			return v, nil
		}
		l.logger.Warn("⚠️  Discarding undecodable cache entry", zap.String("key", key))
	}

	ch := l.group.DoChan(key, func() (interface{}, error) {
		return l.fill(context.WithoutCancel(ctx), key, ttl, func(ctx context.Context) ([]byte, error) {
			v, err := compute(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(v)
		})
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheRequest(metrics.CacheCoalesce)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		fr := res.Val.(flightResult)
		var v T
		if err := json.Unmarshal(fr.data, &v); err != nil {
			return zero, fmt.Errorf("decode cached value %s: %w", key, err)
		}
		return v, nil
	}
}

// fill runs inside the single flight for key.
func (l *Layer) fill(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) (flightResult, error) {
	startEpoch := l.epoch.Load()

	// Another flight may have stored the value between our lookup and now.
	prior := l.lookup(ctx, key)
	if prior != nil && prior.Fresh(l.now()) {
		metrics.CacheRequest(metrics.CacheHit)
		return flightResult{data: prior.Value}, nil
	}

	if l.locker != nil {
		release, entry := l.acquire(ctx, key)
		if entry != nil {
			metrics.CacheRequest(metrics.CacheHit)
			return flightResult{data: entry.Value}, nil
		}
		if release != nil {
			defer func() {
				if err := release(ctx); err != nil {
					l.logger.Warn("⚠️  Failed to release cache lock", zap.String("key", key), zap.Error(err))
				}
			}()
		}
	}

	metrics.CacheRequest(metrics.CacheMiss)
	data, err := compute(ctx)
	if err != nil {
		if prior != nil && prior.WithinGrace(l.now(), l.grace) {
			metrics.CacheRequest(metrics.CacheStale)
			l.logger.Warn("⚠️  Compute failed, serving stale cache entry",
				zap.String("key", key),
				zap.Duration("age", l.now().Sub(prior.StoredAt)),
				zap.Error(err))
			return flightResult{data: prior.Value, stale: true}, nil
		}
		return flightResult{}, err
	}

	if l.epoch.Load() != startEpoch {
		l.logger.Debug("Invalidation raced computation, result not stored", zap.String("key", key))
		return flightResult{data: data}, nil
	}

	entry := &Entry{Key: key, Value: data, StoredAt: l.now(), TTL: ttl}
	sctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	if err := l.store.Set(sctx, entry, ttl+l.grace); err != nil {
		metrics.CacheRequest(metrics.CacheError)
		l.logger.Warn("⚠️  Failed to store cache entry", zap.String("key", key), zap.Error(models.NewDependencyUnavailable("cache", err)))
	}
	return flightResult{data: data}, nil
}

// acquire takes the distributed lock, or waits for the holder to publish a
// fresh entry. It returns a nil release and nil entry when the wait ran out.
func (l *Layer) acquire(ctx context.Context, key string) (func(context.Context) error, *Entry) {
	deadline := l.now().Add(l.lockWait)
	for {
		lctx, cancel := context.WithTimeout(ctx, l.opTimeout)
		release, err := l.locker.TryLock(lctx, key, l.lockTTL)
		cancel()
		if err != nil {
			l.logger.Warn("⚠️  Cache lock unavailable, computing without it", zap.String("key", key), zap.Error(err))
			return nil, nil
		}
		if release != nil {
			return release, nil
		}

		if entry := l.lookup(ctx, key); entry != nil && entry.Fresh(l.now()) {
			return nil, entry
		}
		if !l.now().Before(deadline) {
			return nil, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// lookup reads key from the store. Store failures are logged and read as a miss.
func (l *Layer) lookup(ctx context.Context, key string) *Entry {
	sctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	entry, err := l.store.Get(sctx, key)
	if err == nil {
		return entry
	}
	if !errors.Is(err, ErrMiss) {
		metrics.CacheRequest(metrics.CacheError)
		l.logger.Warn("⚠️  Cache read failed, falling through to compute",
			zap.String("key", key),
			zap.Error(models.NewDependencyUnavailable("cache", err)))
	}
	return nil
}

// Invalidate removes every entry matching one of the patterns. A pattern
// without glob metacharacters is treated as a key prefix.
func (l *Layer) Invalidate(ctx context.Context, patterns ...string) (int, error) {
	l.epoch.Add(1)

	sctx, cancel := context.WithTimeout(ctx, l.opTimeout*4)
	defer cancel()

	total := 0
	for _, pattern := range patterns {
		n, err := l.store.DeleteMatching(sctx, pattern)
		total += n
		if err != nil {
			return total, models.NewDependencyUnavailable("cache", fmt.Errorf("invalidate %q: %w", pattern, err))
		}
	}
	if total > 0 {
		l.logger.Info("🧹 Cache invalidated", zap.Strings("patterns", patterns), zap.Int("deleted", total))
	}
	return total, nil
}
