package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "authcore:rl:"

// Redis is a fixed-window counter shared through Redis. The first hit in a
// window sets the key TTL; the window resets when the key expires.
type Redis struct {
	client   redis.UniversalClient
	prefix   string
	requests int64
	window   time.Duration
}

// NewRedis builds a Redis limiter. An empty prefix uses "authcore:rl:".
func NewRedis(client redis.UniversalClient, prefix string, cfg Config) *Redis {
	cfg = cfg.normalised()
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{
		client:   client,
		prefix:   prefix,
		requests: int64(cfg.Requests),
		window:   cfg.Window,
	}
}

// Allow counts one attempt for key and reports whether it is within budget.
func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.incrementWithTTL(ctx, l.prefix+key)
	if err != nil {
		return false, err
	}
	return count <= l.requests, nil
}

// Reset clears the counter for key.
func (l *Redis) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

// Ping checks connectivity.
func (l *Redis) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}
