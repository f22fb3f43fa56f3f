package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslab/warden"
)

// RedisCache is a shared decision cache. Keys use the deterministic
// warden:{user}:{org}:{resource}:{action} layout, so scoped invalidation is a
// SCAN over a glob pattern followed by a DEL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key warden.CacheKey) (bool, bool, error) {
	v, err := c.client.Get(ctx, key.String()).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (c *RedisCache) Set(ctx context.Context, key warden.CacheKey, allowed bool, ttl time.Duration) error {
	v := "0"
	if allowed {
		v = "1"
	}
	return c.client.Set(ctx, key.String(), v, ttl).Err()
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID, domain string) error {
	if domain == "" {
		return c.deletePattern(ctx, warden.KeyPrefix+":"+userID+":*")
	}
	return c.deletePattern(ctx, warden.KeyPrefix+":"+userID+":"+domain+":*")
}

func (c *RedisCache) InvalidateDomain(ctx context.Context, domain string) error {
	return c.deletePattern(ctx, warden.KeyPrefix+":*:"+domain+":*:*")
}

func (c *RedisCache) deletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
