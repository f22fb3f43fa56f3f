package warden

import (
	"context"
	"fmt"
)

// Violation management: deny overlays for emergency suspension. Every
// operation follows the same order — store mutation first, audit append,
// cache invalidation last — so a stale entry can never be repopulated from
// pre-mutation state between invalidation and write. Invalidation failure is
// returned as an error: a suspension that leaves cached allows behind has not
// taken effect.

// SuspendPermission blocks (resource, action) for every subject in the domain
// until restored. Severity and reason are audit metadata only.
func (e *Enforcer) SuspendPermission(ctx context.Context, actor Actor, domain, resource, action string, severity Severity, reason string) error {
	deny := Deny{
		Domain:    domain,
		Resource:  resource,
		Action:    action,
		Severity:  severity,
		Reason:    reason,
		CreatedAt: e.now(),
	}
	if err := e.policies.AddDeny(ctx, deny); err != nil {
		return fmt.Errorf("suspend permission: %w", err)
	}
	details := map[string]string{"severity": string(severity), "reason": reason}
	if _, err := e.audit.PolicyAdded(ctx, actor, domain, "", resource, action, EffectDeny, details); err != nil {
		return fmt.Errorf("suspend permission: %w", err)
	}
	if err := e.cache.InvalidateDomain(ctx, domain); err != nil {
		return fmt.Errorf("suspend permission: invalidate cache: %w", err)
	}
	e.logger.Info("permission suspended",
		"domain", domain, "resource", resource, "action", action, "severity", string(severity))
	return nil
}

// RestorePermission lifts a suspension. It returns false with a nil error
// when no matching violation exists — "nothing to restore" is an operational
// condition the caller reports, not an I/O failure.
func (e *Enforcer) RestorePermission(ctx context.Context, actor Actor, domain, resource, action string) (bool, error) {
	removed, err := e.policies.RemoveDeny(ctx, domain, resource, action)
	if err != nil {
		return false, fmt.Errorf("restore permission: %w", err)
	}
	if !removed {
		return false, nil
	}
	if _, err := e.audit.PolicyRemoved(ctx, actor, domain, "", resource, action, EffectDeny); err != nil {
		return false, fmt.Errorf("restore permission: %w", err)
	}
	if err := e.cache.InvalidateDomain(ctx, domain); err != nil {
		return false, fmt.Errorf("restore permission: invalidate cache: %w", err)
	}
	e.logger.Info("permission restored", "domain", domain, "resource", resource, "action", action)
	return true, nil
}

// SuspendOrganization places the whole domain under lockdown: Enforce denies
// every resource and action until RestoreOrganization.
func (e *Enforcer) SuspendOrganization(ctx context.Context, actor Actor, domain string, severity Severity, reason string) error {
	return e.SuspendPermission(ctx, actor, domain, LockdownResource, LockdownAction, severity, reason)
}

// RestoreOrganization lifts a lockdown; false means none was active.
func (e *Enforcer) RestoreOrganization(ctx context.Context, actor Actor, domain string) (bool, error) {
	return e.RestorePermission(ctx, actor, domain, LockdownResource, LockdownAction)
}

// Violations lists the domain's active deny overlays. An empty slice, not an
// error, when there are none.
func (e *Enforcer) Violations(ctx context.Context, domain string) ([]Deny, error) {
	denies, err := e.policies.ListDenies(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return denies, nil
}
