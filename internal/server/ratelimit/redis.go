package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counter is the slice of Redis the limiter needs. Increment reports the
// new count and the key's remaining TTL, negative when none is set.
type counter interface {
	Increment(ctx context.Context, key string) (int64, time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisLimiter is a fixed-window counter shared by all server replicas.
// The window starts with the first request and is never extended.
type RedisLimiter struct {
	counter counter
	limit   int64
	window  time.Duration
	prefix  string
}

type redisCounter struct {
	rdb *redis.Client
}

func (c *redisCounter) Increment(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

func (c *redisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// NewRedisLimiter connects to dsn (redis://...) and allows perMinute
// requests per key and minute. The returned close func releases the pool.
func NewRedisLimiter(ctx context.Context, dsn string, perMinute int) (*RedisLimiter, func() error, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("redis dsn: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisLimiter(&redisCounter{rdb: rdb}, perMinute), rdb.Close, nil
}

func newRedisLimiter(c counter, perMinute int) *RedisLimiter {
	return &RedisLimiter{counter: c, limit: int64(perMinute), window: time.Minute, prefix: "ratelimit:accounts:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = l.prefix + key
	n, ttl, err := l.counter.Increment(ctx, key)
	if err != nil {
		return false, err
	}
	// arm the window once; a key left without TTL is armed on its next hit
	if ttl < 0 {
		if err := l.counter.Expire(ctx, key, l.window); err != nil {
			return false, err
		}
	}
	return n <= l.limit, nil
}
