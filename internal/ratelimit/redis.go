package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rate_limit:"

// admitScript prunes, counts and conditionally records in one round trip so
// concurrent admissions against a shared Redis never overshoot the limit.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {count, 0}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {count, 1}
`)

// RedisStore keeps each window as a sorted set of millisecond timestamps.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient parses url and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	res, err := admitScript.Run(ctx, r.client, []string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	return int(res[0]), res[1] == 1, nil
}

func (r *RedisStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	floor := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := r.client.ZCount(ctx, redisKeyPrefix+key, floor, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate window: %w", err)
	}
	return int(n), nil
}
