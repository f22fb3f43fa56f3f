package warden

import (
	"context"
	"fmt"
)

// Policy sync reconciles the external membership table into role assignments.
// The membership source is authoritative; assignments are a derived projection
// that SyncAllOrgMembers can rebuild from scratch.

// SyncMemberRole makes role the single role userID holds in domain. Prior
// assignments are removed first (last-write-wins), so calling it twice with
// the same role yields the same end state.
func (e *Enforcer) SyncMemberRole(ctx context.Context, actor Actor, userID, domain, role string) error {
	removed, err := e.policies.RemoveUserAssignments(ctx, userID, domain)
	if err != nil {
		return fmt.Errorf("sync member role: %w", err)
	}
	for _, old := range removed {
		if _, err := e.audit.RoleRemoved(ctx, actor, domain, userID, old.Role); err != nil {
			return fmt.Errorf("sync member role: %w", err)
		}
	}
	if err := e.policies.AssignRole(ctx, RoleAssignment{UserID: userID, Role: role, Domain: domain}); err != nil {
		return fmt.Errorf("sync member role: %w", err)
	}
	if _, err := e.audit.RoleAssigned(ctx, actor, domain, userID, role); err != nil {
		return fmt.Errorf("sync member role: %w", err)
	}
	if err := e.cache.InvalidateUser(ctx, userID, domain); err != nil {
		return fmt.Errorf("sync member role: invalidate cache: %w", err)
	}
	return nil
}

// RemoveMemberRoles drops every assignment userID holds in domain, used when
// a member leaves the organization.
func (e *Enforcer) RemoveMemberRoles(ctx context.Context, actor Actor, userID, domain string) error {
	removed, err := e.policies.RemoveUserAssignments(ctx, userID, domain)
	if err != nil {
		return fmt.Errorf("remove member roles: %w", err)
	}
	for _, old := range removed {
		if _, err := e.audit.RoleRemoved(ctx, actor, domain, userID, old.Role); err != nil {
			return fmt.Errorf("remove member roles: %w", err)
		}
	}
	if err := e.cache.InvalidateUser(ctx, userID, domain); err != nil {
		return fmt.Errorf("remove member roles: invalidate cache: %w", err)
	}
	return nil
}

// SyncAllOrgMembers rebuilds the domain's assignments from the membership
// source: clear everything, then one assignment per current member. Callers
// must serialize runs per domain; a concurrent run for the same domain can
// observe the transiently empty assignment set.
func (e *Enforcer) SyncAllOrgMembers(ctx context.Context, actor Actor, domain string) error {
	if e.members == nil {
		return fmt.Errorf("sync org members: no membership source configured")
	}
	members, err := e.members.ListMembers(ctx, domain)
	if err != nil {
		return fmt.Errorf("sync org members: %w", err)
	}
	if err := e.policies.ClearDomainAssignments(ctx, domain); err != nil {
		return fmt.Errorf("sync org members: %w", err)
	}
	for _, m := range members {
		if err := e.policies.AssignRole(ctx, RoleAssignment{UserID: m.UserID, Role: m.Role, Domain: domain}); err != nil {
			return fmt.Errorf("sync org members: assign %s: %w", m.UserID, err)
		}
		if _, err := e.audit.RoleAssigned(ctx, actor, domain, m.UserID, m.Role); err != nil {
			return fmt.Errorf("sync org members: %w", err)
		}
	}
	if err := e.cache.InvalidateDomain(ctx, domain); err != nil {
		return fmt.Errorf("sync org members: invalidate cache: %w", err)
	}
	e.logger.Info("org members synced", "domain", domain, "members", len(members))
	return nil
}
