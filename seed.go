package warden

import (
	"context"
	"fmt"
	"sort"
)

// ResourceActions pairs a resource with the actions a role may take on it.
type ResourceActions struct {
	Resource string   `json:"resource" yaml:"resource"`
	Actions  []string `json:"actions" yaml:"actions"`
}

// Built-in role names seeded for every new organization.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// defaultRoleMatrix is the permission matrix materialized for a new tenant.
// Owners get the wildcard grant; the remaining roles get explicit tuples.
var defaultRoleMatrix = map[string][]ResourceActions{
	RoleOwner: {
		{Resource: Wildcard, Actions: []string{Wildcard}},
	},
	RoleAdmin: {
		{Resource: "organization", Actions: []string{"read", "update"}},
		{Resource: "members", Actions: []string{"read", "manage"}},
		{Resource: "posts", Actions: []string{"create", "read", "update", "delete"}},
		{Resource: "files", Actions: []string{"create", "read", "update", "delete"}},
		{Resource: "notifications", Actions: []string{"create", "read", "update", "delete"}},
		{Resource: "reports", Actions: []string{"create", "read", "update", "delete"}},
		{Resource: "subscriptions", Actions: []string{"read"}},
	},
	RoleMember: {
		{Resource: "organization", Actions: []string{"read"}},
		{Resource: "posts", Actions: []string{"create", "read", "update"}},
		{Resource: "files", Actions: []string{"create", "read"}},
		{Resource: "notifications", Actions: []string{"read"}},
		{Resource: "reports", Actions: []string{"read"}},
	},
	RoleViewer: {
		{Resource: "organization", Actions: []string{"read"}},
		{Resource: "posts", Actions: []string{"read"}},
		{Resource: "files", Actions: []string{"read"}},
		{Resource: "reports", Actions: []string{"read"}},
	},
}

// SeedDefaultPolicies materializes the role matrix for a newly created
// organization. It must run before any member is assigned a role in the org;
// sequencing is the caller's responsibility. Re-running is harmless: adding
// an existing grant is a no-op.
func (e *Enforcer) SeedDefaultPolicies(ctx context.Context, actor Actor, domain string) error {
	roles := make([]string, 0, len(e.matrix))
	for role := range e.matrix {
		roles = append(roles, role)
	}
	sort.Strings(roles) // deterministic audit order

	for _, role := range roles {
		for _, ra := range e.matrix[role] {
			for _, action := range ra.Actions {
				g := Grant{Role: role, Domain: domain, Resource: ra.Resource, Action: action}
				if err := e.policies.AddGrant(ctx, g); err != nil {
					return fmt.Errorf("seed default policies: %w", err)
				}
				if _, err := e.audit.PolicyAdded(ctx, actor, domain, role, ra.Resource, action, EffectAllow, nil); err != nil {
					return fmt.Errorf("seed default policies: %w", err)
				}
			}
		}
	}
	if err := e.cache.InvalidateDomain(ctx, domain); err != nil {
		return fmt.Errorf("seed default policies: invalidate cache: %w", err)
	}
	e.logger.Info("default policies seeded", "domain", domain, "roles", len(roles))
	return nil
}
