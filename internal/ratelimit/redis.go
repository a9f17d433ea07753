// Package ratelimit implements a fixed-window counter on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings; it returns nil when addr is empty.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Limiter allows at most Limit hits per key within Window.
type Limiter struct {
	rdb    *redis.Client
	Limit  int
	Window time.Duration
	Prefix string
}

func NewLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{rdb: rdb, Limit: limit, Window: window, Prefix: prefix}
}

func (l *Limiter) Key(key string) string {
	return l.Prefix + ":" + key
}

// Allow counts one hit for key. Without a client it always allows.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil || l.Limit <= 0 {
		return true, nil
	}
	k := l.Key(key)
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.Window).Err(); err != nil {
			return true, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n <= int64(l.Limit), nil
}
