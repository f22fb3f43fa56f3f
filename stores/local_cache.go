package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/veritaslab/warden"
)

// LocalCache is an in-process decision cache backed by ristretto. Ristretto
// cannot delete by pattern, so scoped invalidation uses generation counters:
// every stored key embeds the current generation of its user, user+domain and
// domain scopes, and invalidating a scope bumps its counter, orphaning every
// entry written under the old generation. Orphans age out by TTL.
type LocalCache struct {
	cache *ristretto.Cache

	mu   sync.RWMutex
	gens map[string]uint64
}

// NewLocalCache sizes the ristretto cache for roughly maxEntries decisions.
func NewLocalCache(maxEntries int64) (*LocalCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1 << 16
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &LocalCache{cache: c, gens: make(map[string]uint64)}, nil
}

func (c *LocalCache) generationKey(key warden.CacheKey) string {
	c.mu.RLock()
	user := c.gens["u:"+key.UserID]
	pair := c.gens["p:"+key.UserID+":"+key.Domain]
	domain := c.gens["d:"+key.Domain]
	c.mu.RUnlock()
	return fmt.Sprintf("%d:%d:%d:%s", user, pair, domain, key.String())
}

func (c *LocalCache) Get(ctx context.Context, key warden.CacheKey) (bool, bool, error) {
	v, ok := c.cache.Get(c.generationKey(key))
	if !ok {
		return false, false, nil
	}
	allowed, ok := v.(bool)
	if !ok {
		return false, false, nil
	}
	return allowed, true, nil
}

func (c *LocalCache) Set(ctx context.Context, key warden.CacheKey, allowed bool, ttl time.Duration) error {
	c.cache.SetWithTTL(c.generationKey(key), allowed, 1, ttl)
	// ristretto buffers writes; wait so the entry is visible to the next
	// check rather than silently dropped behind the admission buffer
	c.cache.Wait()
	return nil
}

func (c *LocalCache) InvalidateUser(ctx context.Context, userID, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if domain == "" {
		c.gens["u:"+userID]++
		return nil
	}
	c.gens["p:"+userID+":"+domain]++
	return nil
}

func (c *LocalCache) InvalidateDomain(ctx context.Context, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens["d:"+domain]++
	return nil
}

// Close releases the ristretto goroutines.
func (c *LocalCache) Close() {
	c.cache.Close()
}
