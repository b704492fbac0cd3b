package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Maximum requests per IP per purpose within the window
	maxRequestsPerWindow = 10
	windowDuration       = time.Minute
)

// commands is the subset of redis operations the limiter issues
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// Limiter implements a fixed-window rate limiter backed by Redis
type Limiter struct {
	client commands
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// getIPKey generates the Redis key for an IP's request counter
func getIPKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:%s:%s", purpose, ip)
}

// CheckIPRateLimit returns true when the IP has exhausted its window
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error) {
	key := getIPKey(ip, purpose)

	count, err := l.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get rate limit counter: %w", err)
	}

	return count >= maxRequestsPerWindow, nil
}

// RecordIPRequest increments the IP's counter. The window TTL is set only
// when the key has none; refreshing it on every hit would let steady traffic
// hold the window open forever.
func (l *Limiter) RecordIPRequest(ctx context.Context, ip, purpose string) error {
	key := getIPKey(ip, purpose)

	if err := l.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}

	if err := l.client.ExpireNX(ctx, key, windowDuration).Err(); err != nil {
		return fmt.Errorf("failed to set window expiry: %w", err)
	}

	return nil
}
