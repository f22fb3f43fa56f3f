// Package warden is a tenant-scoped authorization core: grant policies and
// role assignments per organization, deny overlays ("violations") for
// emergency suspension, a pluggable decision cache, and a hash-chained audit
// log of every policy mutation and permission check.
package warden

import (
	"context"
	"time"
)

// Effect is the outcome recorded for a policy rule or a decision.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Wildcard matches any resource or action on a grant.
const Wildcard = "*"

// The lockdown tuple. A deny on it suspends every resource and action in the
// domain, regardless of what was requested.
const (
	LockdownResource = "organization"
	LockdownAction   = "lockdown"
)

// Grant permits a role to perform an action on a resource within a domain.
// The tuple itself is the identity: adding an existing grant is a no-op.
type Grant struct {
	Role     string `json:"role" yaml:"role"`
	Domain   string `json:"domain" yaml:"domain"`
	Resource string `json:"resource" yaml:"resource"`
	Action   string `json:"action" yaml:"action"`
}

// Deny is a violation overlay: it blocks a (resource, action) pair for every
// subject in a domain, independent of any grant. There is deliberately no role
// dimension; deny wins by type, not by a sentinel role value.
type Deny struct {
	Domain    string    `json:"domain" yaml:"domain"`
	Resource  string    `json:"resource" yaml:"resource"`
	Action    string    `json:"action" yaml:"action"`
	Severity  Severity  `json:"severity,omitempty" yaml:"severity,omitempty"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Matches reports whether this deny blocks the requested tuple. An org-wide
// lockdown matches everything in its domain.
func (d Deny) Matches(resource, action string) bool {
	if d.Resource == LockdownResource && d.Action == LockdownAction {
		return true
	}
	return d.Resource == resource && d.Action == action
}

// IsLockdown reports whether the deny is the org-wide lockdown rule.
func (d Deny) IsLockdown() bool {
	return d.Resource == LockdownResource && d.Action == LockdownAction
}

// Severity classifies a violation for audit purposes only; it never affects
// the boolean decision.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// RoleAssignment binds a user to exactly one role within one domain. The
// single-role invariant is maintained by Sync, not by the store.
type RoleAssignment struct {
	UserID string `json:"user_id" yaml:"user_id"`
	Role   string `json:"role" yaml:"role"`
	Domain string `json:"domain" yaml:"domain"`
}

// Member is one row of the external membership source of truth.
type Member struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Actor identifies who performed an operation, for audit context.
type Actor struct {
	ID        string `json:"id"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// SystemActor is used for internally initiated mutations (seeding, resync).
var SystemActor = Actor{ID: "system"}

// PolicyStore persists grants, denies and role assignments. Implementations
// must treat the grant tuple as unique (duplicate adds succeed silently) and
// report absence on removal rather than erroring.
type PolicyStore interface {
	AddGrant(ctx context.Context, g Grant) error
	RemoveGrant(ctx context.Context, g Grant) (bool, error)
	ListGrants(ctx context.Context, domain string) ([]Grant, error)
	ListRoleGrants(ctx context.Context, role, domain string) ([]Grant, error)

	AddDeny(ctx context.Context, d Deny) error
	RemoveDeny(ctx context.Context, domain, resource, action string) (bool, error)
	ListDenies(ctx context.Context, domain string) ([]Deny, error)

	AssignRole(ctx context.Context, a RoleAssignment) error
	RemoveUserAssignments(ctx context.Context, userID, domain string) ([]RoleAssignment, error)
	ListUserAssignments(ctx context.Context, userID, domain string) ([]RoleAssignment, error)
	ClearDomainAssignments(ctx context.Context, domain string) error
}

// MembershipSource is the external source of truth for org membership. The
// membership table belongs to another subsystem; the policy store is a derived
// projection of it and can always be rebuilt via SyncAllOrgMembers.
type MembershipSource interface {
	ListMembers(ctx context.Context, domain string) ([]Member, error)
}
