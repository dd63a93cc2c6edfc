package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// keyPrefix namespaces consumed-assertion keys in a shared Redis.
const keyPrefix = "samlbridge:assertion:"

// RedisCache is a Cache shared across instances. Expiry is delegated to
// Redis key TTLs, so no sweeper is needed.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed replay cache. A non-positive ttl
// falls back to DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Consume marks the assertion ID as used via SETNX, which is atomic on the
// Redis side: exactly one caller observes a fresh ID.
func (c *RedisCache) Consume(ctx context.Context, assertionID string) (bool, error) {
	fresh, err := c.client.SetNX(ctx, keyPrefix+assertionID, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay: failed to record assertion ID: %w", err)
	}
	return fresh, nil
}
