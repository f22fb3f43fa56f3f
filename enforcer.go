package warden

import (
	"context"
	"fmt"
	"time"

	"github.com/veritaslab/warden/logger"
	"github.com/veritaslab/warden/utils"
)

// DefaultCacheTTL bounds how long a decision may be served without re-reading
// policy. Mutations invalidate eagerly; the TTL only limits the staleness
// window left by a crash between store write and cache invalidation.
const DefaultCacheTTL = 30 * time.Second

// Enforcer is the decision core. It owns no global state: construct one per
// deployment and pass it to every caller.
type Enforcer struct {
	policies PolicyStore
	audit    *AuditChain
	members  MembershipSource
	cache    DecisionCache
	cacheTTL time.Duration
	matrix   map[string][]ResourceActions
	logger   logger.Logger
	now      func() time.Time
}

// Option configures an Enforcer at construction time.
type Option func(*Enforcer) error

// WithCache installs a decision cache provider. Without one, every check
// evaluates against the policy store.
func WithCache(c DecisionCache) Option {
	return func(e *Enforcer) error {
		if c == nil {
			return fmt.Errorf("nil cache")
		}
		e.cache = c
		return nil
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Enforcer) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
		e.cacheTTL = ttl
		return nil
	}
}

func WithLogger(l logger.Logger) Option {
	return func(e *Enforcer) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithSeedMatrix replaces the built-in role permission matrix used by
// SeedDefaultPolicies.
func WithSeedMatrix(m map[string][]ResourceActions) Option {
	return func(e *Enforcer) error {
		if len(m) == 0 {
			return fmt.Errorf("empty seed matrix")
		}
		e.matrix = m
		return nil
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) error {
		e.now = now
		e.audit.now = now
		return nil
	}
}

// New builds an Enforcer over the given stores. members may be nil when
// SyncAllOrgMembers is not used.
func New(policies PolicyStore, audit AuditStore, members MembershipSource, opts ...Option) (*Enforcer, error) {
	if policies == nil {
		return nil, fmt.Errorf("warden: policy store is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("warden: audit store is required")
	}
	e := &Enforcer{
		policies: policies,
		audit:    NewAuditChain(audit),
		members:  members,
		cache:    nopCache{},
		cacheTTL: DefaultCacheTTL,
		matrix:   defaultRoleMatrix,
		logger:   logger.NewNullLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("warden: %w", err)
		}
	}
	return e, nil
}

// Audit exposes the chain for verification and queries.
func (e *Enforcer) Audit() *AuditChain { return e.audit }

// Enforce decides whether subjectID may perform action on resource within
// domain. Deny overlays are authoritative: a matching violation (or an
// org-wide lockdown) short-circuits to false before grants are consulted.
// Store or cache failures surface as errors, never as an implicit allow;
// callers must treat an error as a denial.
func (e *Enforcer) Enforce(ctx context.Context, subjectID, domain, resource, action string) (bool, error) {
	key := CacheKey{UserID: subjectID, Domain: domain, Resource: resource, Action: action}
	if allowed, ok, err := e.cache.Get(ctx, key); err != nil {
		return false, fmt.Errorf("enforce: cache read: %w", err)
	} else if ok {
		return allowed, nil
	}

	allowed, err := e.evaluate(ctx, subjectID, domain, resource, action)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}

	if err := e.cache.Set(ctx, key, allowed, e.cacheTTL); err != nil {
		return false, fmt.Errorf("enforce: cache write: %w", err)
	}

	if allowed {
		_, err = e.audit.PermissionGranted(ctx, subjectID, domain, resource, action)
	} else {
		_, err = e.audit.PermissionDenied(ctx, subjectID, domain, resource, action)
	}
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}

	e.logger.Debug("decision",
		"subject", subjectID, "domain", domain,
		"resource", resource, "action", action, "allowed", allowed)
	return allowed, nil
}

func (e *Enforcer) evaluate(ctx context.Context, subjectID, domain, resource, action string) (bool, error) {
	denies, err := e.policies.ListDenies(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("list denies: %w", err)
	}
	for _, d := range denies {
		if d.Matches(resource, action) {
			return false, nil
		}
	}

	assignments, err := e.policies.ListUserAssignments(ctx, subjectID, domain)
	if err != nil {
		return false, fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		grants, err := e.policies.ListRoleGrants(ctx, a.Role, domain)
		if err != nil {
			return false, fmt.Errorf("list grants for role %s: %w", a.Role, err)
		}
		for _, g := range grants {
			if utils.Match(resource, g.Resource) && utils.Match(action, g.Action) {
				return true, nil
			}
		}
	}
	return false, nil
}

// AddGrant records a permission grant, audits it and invalidates the domain's
// cached decisions. Adding an existing grant is a no-op at the store but is
// still audited.
func (e *Enforcer) AddGrant(ctx context.Context, actor Actor, g Grant) error {
	if err := e.policies.AddGrant(ctx, g); err != nil {
		return fmt.Errorf("add grant: %w", err)
	}
	if _, err := e.audit.PolicyAdded(ctx, actor, g.Domain, g.Role, g.Resource, g.Action, EffectAllow, nil); err != nil {
		return fmt.Errorf("add grant: %w", err)
	}
	if err := e.cache.InvalidateDomain(ctx, g.Domain); err != nil {
		return fmt.Errorf("add grant: invalidate cache: %w", err)
	}
	return nil
}

// RemoveGrant revokes a grant; false means there was nothing to remove.
func (e *Enforcer) RemoveGrant(ctx context.Context, actor Actor, g Grant) (bool, error) {
	removed, err := e.policies.RemoveGrant(ctx, g)
	if err != nil {
		return false, fmt.Errorf("remove grant: %w", err)
	}
	if !removed {
		return false, nil
	}
	if _, err := e.audit.PolicyRemoved(ctx, actor, g.Domain, g.Role, g.Resource, g.Action, EffectAllow); err != nil {
		return false, fmt.Errorf("remove grant: %w", err)
	}
	if err := e.cache.InvalidateDomain(ctx, g.Domain); err != nil {
		return false, fmt.Errorf("remove grant: invalidate cache: %w", err)
	}
	return true, nil
}

// ListGrants returns all grants for a domain, for admin read-back.
func (e *Enforcer) ListGrants(ctx context.Context, domain string) ([]Grant, error) {
	return e.policies.ListGrants(ctx, domain)
}
