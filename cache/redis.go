package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions addresses the shared cache / rate-limit Redis.
type RedisOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(opts RedisOptions, logger *zap.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", opts.Host, opts.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("⚠️  Failed to connect to Redis", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil, err
	}

	logger.Info("✅ Connected to Redis", zap.String("addr", addr))
	return client, nil
}

// RedisStore keeps cache entries in Redis as JSON documents.
type RedisStore struct {
	client    redis.UniversalClient
	scanCount int64
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, scanCount: 100}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (r *RedisStore) Set(ctx context.Context, entry *Entry, retention time.Duration) error {
	if retention < entry.TTL {
		retention = entry.TTL
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, entry.Key, data, retention).Err()
}

// DeleteMatching walks the keyspace with SCAN and deletes matching keys in batches.
func (r *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	match := globPattern(pattern)
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, r.scanCount).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
