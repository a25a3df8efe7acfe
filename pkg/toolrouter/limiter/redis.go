package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter with a Redis sorted-set sliding window,
// grounded on the same ZRemRangeByScore/ZCount/ZAdd/Expire pattern used for
// distributed rate limiting elsewhere in the pack. Each (tenant, tool) pair
// gets two sorted sets — one scored by minute-window entries, one by
// hour-window entries — so a burst that's fine per-minute still trips an
// hourly ceiling.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter wraps an existing Redis client. prefix namespaces keys
// (e.g. "conductor:ratelimit") so the rate limiter's keyspace never
// collides with other consumers of the same Redis instance.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "conductor:ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, tenantID, toolName string, perMinute, perHour int) (bool, int64, error) {
	now := time.Now()

	if perMinute > 0 {
		allowed, retryMs, err := l.checkWindow(ctx, tenantID, toolName, "m", time.Minute, perMinute, now)
		if err != nil {
			return true, 0, err // fail open: a Redis outage must not stall the supervisor
		}
		if !allowed {
			return false, retryMs, nil
		}
	}
	if perHour > 0 {
		allowed, retryMs, err := l.checkWindow(ctx, tenantID, toolName, "h", time.Hour, perHour, now)
		if err != nil {
			return true, 0, err
		}
		if !allowed {
			return false, retryMs, nil
		}
	}
	return true, 0, nil
}

func (l *RedisLimiter) checkWindow(ctx context.Context, tenantID, toolName, suffix string, window time.Duration, limit int, now time.Time) (bool, int64, error) {
	key := fmt.Sprintf("%s:%s:%s:%s", l.prefix, tenantID, toolName, suffix)
	windowStart := now.Add(-window)

	if err := l.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMicro())).Err(); err != nil {
		return false, 0, fmt.Errorf("limiter: trim window %s: %w", key, err)
	}

	count, err := l.client.ZCount(ctx, key, fmt.Sprintf("%d", windowStart.UnixMicro()), "+inf").Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter: count window %s: %w", key, err)
	}

	if count >= int64(limit) {
		retryAfterMs := window.Milliseconds() / int64(limit)
		if retryAfterMs < 1 {
			retryAfterMs = 1
		}
		return false, retryAfterMs, nil
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	if err := l.client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member}).Err(); err != nil {
		return false, 0, fmt.Errorf("limiter: record request %s: %w", key, err)
	}
	l.client.Expire(ctx, key, 2*window)

	return true, 0, nil
}
