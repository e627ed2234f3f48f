package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and pings it, retrying with a doubling
// delay until attempts run out.
func ConnectRedis(ctx context.Context, addr string, attempts int) (*redis.Client, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			return rdb, nil
		}
		rdb.Close()
		if attempt == attempts {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, lastErr)
}
