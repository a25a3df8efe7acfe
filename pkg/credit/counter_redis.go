package credit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// incrByCeilingScript atomically adds amount to the key's current value
// and returns {0, current} without writing when the result would exceed
// ceiling, or {1, new} after committing the increment.
const incrByCeilingScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
local next = current + amount
if next > ceiling then
  return {0, current}
end
redis.call('SET', KEYS[1], next)
return {1, next}
`

// RedisCounter implements Counter with a Redis-resident total per
// reservation, guarded by a Lua script so the check-and-increment is a
// single atomic operation even when multiple workers race to consume
// against the same reservation.
type RedisCounter struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisCounter wraps an existing Redis client. prefix namespaces keys
// (e.g. "conductor:credit") so the counter's keyspace never collides with
// other consumers of the same Redis instance.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "conductor:credit"
	}
	return &RedisCounter{client: client, prefix: prefix, script: redis.NewScript(incrByCeilingScript)}
}

func (c *RedisCounter) IncrBy(ctx context.Context, reservationID string, amount, ceiling int64) (int64, bool, error) {
	key := fmt.Sprintf("%s:%s", c.prefix, reservationID)

	res, err := c.script.Run(ctx, c.client, []string{key}, amount, ceiling).Result()
	if err != nil {
		return 0, false, fmt.Errorf("credit: incrby %s: %w", key, err)
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, false, fmt.Errorf("credit: unexpected script result %#v", res)
	}
	committed, _ := pair[0].(int64)
	newTotal, _ := pair[1].(int64)
	return newTotal, committed == 1, nil
}

func (c *RedisCounter) Reset(ctx context.Context, reservationID string) error {
	key := fmt.Sprintf("%s:%s", c.prefix, reservationID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("credit: reset %s: %w", key, err)
	}
	return nil
}
