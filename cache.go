package warden

import (
	"context"
	"time"
)

// CacheKey identifies one cached decision. The string form is deterministic
// and composed in fixed order so backends can delete by pattern: a user scope
// is "warden:{user}:*", a user+org scope "warden:{user}:{org}:*", and an org
// scope "warden:*:{org}:*:*".
type CacheKey struct {
	UserID   string
	Domain   string
	Resource string
	Action   string
}

// KeyPrefix is the leading segment of every cache key.
const KeyPrefix = "warden"

func (k CacheKey) String() string {
	return KeyPrefix + ":" + k.UserID + ":" + k.Domain + ":" + k.Resource + ":" + k.Action
}

// DecisionCache maps (user, org, resource, action) to a cached allow/deny.
// Entries must never outlive a policy mutation affecting their domain; the
// Enforcer invalidates after every mutation, TTL is only the backstop.
type DecisionCache interface {
	// Get returns the cached value and whether a cached entry existed.
	Get(ctx context.Context, key CacheKey) (allowed bool, ok bool, err error)
	Set(ctx context.Context, key CacheKey, allowed bool, ttl time.Duration) error
	// InvalidateUser clears entries for a user; domain "" means every org.
	InvalidateUser(ctx context.Context, userID, domain string) error
	// InvalidateDomain clears entries for every user within the domain.
	InvalidateDomain(ctx context.Context, domain string) error
}

// nopCache is installed when no cache provider is configured: every lookup is
// a miss, so enforcement still works, only slower.
type nopCache struct{}

func (nopCache) Get(context.Context, CacheKey) (bool, bool, error) { return false, false, nil }
func (nopCache) Set(context.Context, CacheKey, bool, time.Duration) error { return nil }
func (nopCache) InvalidateUser(context.Context, string, string) error { return nil }
func (nopCache) InvalidateDomain(context.Context, string) error { return nil }
