// Package ratelimit enforces the per-host politeness delay across
// concurrent worker processes.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter gates concurrent access to a host behind a short-lived Redis
// key: the first caller within the window proceeds immediately, later
// callers wait out the remaining delay.
type Limiter struct {
	client *redis.Client
	delay  time.Duration
}

// New connects to Redis from a redis:// URL.
func New(url string, delay time.Duration) (*Limiter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: invalid redis url: %w", err)
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Limiter{client: redis.NewClient(opt), delay: delay}, nil
}

// Close releases the underlying Redis connection pool.
func (l *Limiter) Close() error {
	return l.client.Close()
}

// Wait blocks until the given host has not been hit within the last
// politeness window, then claims the window for itself. It returns
// promptly if ctx is canceled first.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	key := "contactminer:ratelimit:" + host

	for {
		ok, err := l.client.SetNX(ctx, key, "1", l.delay).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: redis error: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := l.client.PTTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: redis error: %w", err)
		}
		wait := ttl
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
