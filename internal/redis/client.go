package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewClient connects to Redis and pings it until it answers or maxWait runs out.
func NewClient(ctx context.Context, addr, password string, db int, maxWait time.Duration, log *zap.SugaredLogger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait
	err := backoff.RetryNotify(func() error {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pctx).Err()
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Warnw("redis not ready, retrying", "addr", addr, "in", d, "err", err)
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
