package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// reserveScript either claims the slot (returns 0) or returns the number of
// milliseconds left in the current window. Server time is used so replicas
// with skewed clocks agree.
var reserveScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local interval = tonumber(ARGV[1])
local last = redis.call('GET', KEYS[1])
if last then
  local remaining = interval - (now - tonumber(last))
  if remaining > 0 then
    return remaining
  end
end
redis.call('SET', KEYS[1], now, 'PX', interval)
return 0
`)

// RedisGate shares the last-call time between processes through Redis.
type RedisGate struct {
	client   *redis.Client
	key      string
	interval time.Duration
	clock    Clock
}

// NewRedisGate connects to redisURL and returns a gate keyed by provider.
func NewRedisGate(redisURL, provider string, interval time.Duration, clock Clock) (*RedisGate, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisGateFromClient(c, provider, interval, clock), nil
}

// NewRedisGateFromClient wraps an existing client.
func NewRedisGateFromClient(c *redis.Client, provider string, interval time.Duration, clock Clock) *RedisGate {
	if clock == nil {
		clock = SystemClock()
	}
	return &RedisGate{
		client:   c,
		key:      fmt.Sprintf("medilens:throttle:%s", strings.ToLower(provider)),
		interval: interval,
		clock:    clock,
	}
}

// Acquire implements Gate.
func (g *RedisGate) Acquire(ctx context.Context) (Slot, error) {
	if g.interval <= 0 {
		return Slot{Start: g.clock.Now()}, nil
	}

	var waited time.Duration
	for {
		remaining, err := reserveScript.Run(ctx, g.client, []string{g.key}, g.interval.Milliseconds()).Int64()
		if err != nil {
			return Slot{}, fmt.Errorf("reserve throttle slot: %w", err)
		}
		if remaining <= 0 {
			return Slot{Start: g.clock.Now(), Waited: waited}, nil
		}

		wait := time.Duration(remaining) * time.Millisecond
		select {
		case <-g.clock.After(wait):
			waited += wait
		case <-ctx.Done():
			return Slot{}, ctx.Err()
		}
	}
}

// Close releases the Redis connection.
func (g *RedisGate) Close() error { return g.client.Close() }
