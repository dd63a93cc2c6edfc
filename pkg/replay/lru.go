package replay

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultTTL matches a generous assertion validity window.
const DefaultTTL = 10 * time.Minute

// defaultMaxEntries bounds the in-memory cache.
const defaultMaxEntries = 16384

// LRUCache is a single-process Cache backed by an expirable LRU. Suitable
// for single-instance deployments; multi-instance deployments should use
// RedisCache so all instances share the consumed set.
type LRUCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

// NewLRUCache creates an in-memory replay cache. A non-positive ttl falls
// back to DefaultTTL.
func NewLRUCache(ttl time.Duration) *LRUCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRUCache{
		lru: expirable.NewLRU[string, struct{}](defaultMaxEntries, nil, ttl),
	}
}

// Consume marks the assertion ID as used. The check and the insert happen
// under one lock so two concurrent callbacks cannot both see a fresh ID.
func (c *LRUCache) Consume(ctx context.Context, assertionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.lru.Get(assertionID); seen {
		return false, nil
	}
	c.lru.Add(assertionID, struct{}{})
	return true, nil
}
