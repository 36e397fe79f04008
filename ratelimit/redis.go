package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes, checks and appends across every window of a tier in one
// server-side step.
//
// KEYS[i]: window log (sorted set scored by unix ms)
// ARGV[1]: now ms, ARGV[2]: weight, ARGV[3]: member prefix
// ARGV[2+2i], ARGV[3+2i]: limit and size ms of window i
//
// Returns {allowed, window, oldest ms, used...}.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local weight = tonumber(ARGV[2])
local member = ARGV[3]
local used = {}

for i = 1, #KEYS do
	local limit = tonumber(ARGV[2 + 2 * i])
	local size = tonumber(ARGV[3 + 2 * i])
	redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', now - size)
	local count = redis.call('ZCARD', KEYS[i])
	used[i] = count
	if count + weight > limit then
		local oldest = now
		local first = redis.call('ZRANGE', KEYS[i], 0, 0, 'WITHSCORES')
		if first[2] then
			oldest = tonumber(first[2])
		end
		local res = {0, i - 1, oldest}
		for j = 1, i do
			res[3 + j] = used[j]
		end
		return res
	end
end

local res = {1, 0, 0}
for i = 1, #KEYS do
	local size = tonumber(ARGV[3 + 2 * i])
	for j = 1, weight do
		redis.call('ZADD', KEYS[i], now, member .. ':' .. j)
	end
	redis.call('PEXPIRE', KEYS[i], size)
	res[3 + i] = used[i] + weight
end
return res
`)

// RedisStore keeps window logs in Redis sorted sets shared across processes.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Admit(ctx context.Context, keyID string, windows []Window, weight int, now time.Time) (Result, error) {
	keys := make([]string, len(windows))
	args := make([]interface{}, 0, 3+2*len(windows))
	args = append(args, now.UnixMilli(), weight, uuid.NewString())
	for i, w := range windows {
		keys[i] = windowKey(keyID, w)
		args = append(args, w.Limit, w.Size.Milliseconds())
	}

	vals, err := admitScript.Run(ctx, r.client, keys, args...).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) < 3 {
		return Result{}, fmt.Errorf("unexpected admit reply length %d", len(vals))
	}

	used := make([]int, 0, len(vals)-3)
	for _, v := range vals[3:] {
		used = append(used, int(v))
	}
	return Result{
		Allowed: vals[0] == 1,
		Window:  int(vals[1]),
		Oldest:  time.UnixMilli(vals[2]),
		Used:    used,
	}, nil
}

func (r *RedisStore) Usage(ctx context.Context, keyID string, windows []Window, now time.Time) ([]int, error) {
	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		from := "(" + strconv.FormatInt(now.Add(-w.Size).UnixMilli(), 10)
		cmds[i] = pipe.ZCount(ctx, windowKey(keyID, w), from, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	used := make([]int, len(windows))
	for i, cmd := range cmds {
		used[i] = int(cmd.Val())
	}
	return used, nil
}
