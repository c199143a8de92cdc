package httpx

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const redisRateLimitPrefix = "localpost:ratelimit:"

type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiter constructs a Redis-backed limiter sharing counters
// across replicas. Errors fall open: an unreachable Redis never locks out
// legitimate logins.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisRateLimiter{client: client, logger: logger, timeout: 500 * time.Millisecond}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	fullKey := redisRateLimitPrefix + key
	count, err := rl.client.Incr(ctx, fullKey).Result()
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		return rateDecision{allowed: true}
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, fullKey, window).Err(); err != nil {
			rl.logger.Warn("rate limiter expire failed", "error", err)
		}
	}
	ttl, err := rl.client.TTL(ctx, fullKey).Result()
	windowEnd := time.Now().Add(window)
	if err == nil && ttl > 0 {
		windowEnd = time.Now().Add(ttl)
	}
	return rateDecision{
		allowed:   count <= int64(limit),
		count:     int(count),
		windowEnd: windowEnd,
	}
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}
