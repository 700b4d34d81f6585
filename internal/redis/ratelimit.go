package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed window counter shared by every instance.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: r, prefix: prefix, limit: int64(limit), window: window}
}

func (r *RateLimiter) key(k string) string { return fmt.Sprintf("%s:rl:%s", r.prefix, k) }

// Allow counts one hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rk := r.key(key)
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, rk, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}
