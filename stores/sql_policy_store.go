package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/veritaslab/warden"
)

// SQLPolicyStore persists grants, denies and role assignments via squealx.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) AddGrant(ctx context.Context, g warden.Grant) error {
	q := `INSERT OR IGNORE INTO grants(role, domain, resource, action) VALUES(:role, :domain, :resource, :action)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role":     g.Role,
		"domain":   g.Domain,
		"resource": g.Resource,
		"action":   g.Action,
	})
	return err
}

func (s *SQLPolicyStore) RemoveGrant(ctx context.Context, g warden.Grant) (bool, error) {
	q := `DELETE FROM grants WHERE role = :role AND domain = :domain AND resource = :resource AND action = :action`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role":     g.Role,
		"domain":   g.Domain,
		"resource": g.Resource,
		"action":   g.Action,
	})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLPolicyStore) ListGrants(ctx context.Context, domain string) ([]warden.Grant, error) {
	q := `SELECT role, domain, resource, action FROM grants WHERE domain = :domain ORDER BY role, resource, action`
	return s.scanGrants(ctx, q, map[string]any{"domain": domain})
}

func (s *SQLPolicyStore) ListRoleGrants(ctx context.Context, role, domain string) ([]warden.Grant, error) {
	q := `SELECT role, domain, resource, action FROM grants WHERE role = :role AND domain = :domain`
	return s.scanGrants(ctx, q, map[string]any{"role": role, "domain": domain})
}

func (s *SQLPolicyStore) scanGrants(ctx context.Context, q string, params map[string]any) ([]warden.Grant, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]warden.Grant, 0)
	for r.Next() {
		var g warden.Grant
		if err := r.Scan(&g.Role, &g.Domain, &g.Resource, &g.Action); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *SQLPolicyStore) AddDeny(ctx context.Context, d warden.Deny) error {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT OR REPLACE INTO denies(domain, resource, action, severity, reason, created_at) VALUES(:domain, :resource, :action, :severity, :reason, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"domain":     d.Domain,
		"resource":   d.Resource,
		"action":     d.Action,
		"severity":   string(d.Severity),
		"reason":     d.Reason,
		"created_at": created,
	})
	return err
}

func (s *SQLPolicyStore) RemoveDeny(ctx context.Context, domain, resource, action string) (bool, error) {
	q := `DELETE FROM denies WHERE domain = :domain AND resource = :resource AND action = :action`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"domain":   domain,
		"resource": resource,
		"action":   action,
	})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLPolicyStore) ListDenies(ctx context.Context, domain string) ([]warden.Deny, error) {
	q := `SELECT domain, resource, action, severity, reason, created_at FROM denies WHERE domain = :domain ORDER BY resource, action`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"domain": domain})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]warden.Deny, 0)
	for r.Next() {
		var d warden.Deny
		var severity string
		var createdRaw any
		if err := r.Scan(&d.Domain, &d.Resource, &d.Action, &severity, &d.Reason, &createdRaw); err != nil {
			return nil, err
		}
		d.Severity = warden.Severity(severity)
		d.CreatedAt = scanFlexibleTime(createdRaw)
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLPolicyStore) AssignRole(ctx context.Context, a warden.RoleAssignment) error {
	q := `INSERT OR IGNORE INTO role_assignments(user_id, role, domain) VALUES(:user_id, :role, :domain)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id": a.UserID,
		"role":    a.Role,
		"domain":  a.Domain,
	})
	return err
}

func (s *SQLPolicyStore) RemoveUserAssignments(ctx context.Context, userID, domain string) ([]warden.RoleAssignment, error) {
	existing, err := s.ListUserAssignments(ctx, userID, domain)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return existing, nil
	}
	q := `DELETE FROM role_assignments WHERE user_id = :user_id AND domain = :domain`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "domain": domain}); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *SQLPolicyStore) ListUserAssignments(ctx context.Context, userID, domain string) ([]warden.RoleAssignment, error) {
	q := `SELECT user_id, role, domain FROM role_assignments WHERE user_id = :user_id AND domain = :domain`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "domain": domain})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]warden.RoleAssignment, 0)
	for r.Next() {
		var a warden.RoleAssignment
		if err := r.Scan(&a.UserID, &a.Role, &a.Domain); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLPolicyStore) ClearDomainAssignments(ctx context.Context, domain string) error {
	q := `DELETE FROM role_assignments WHERE domain = :domain`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"domain": domain})
	return err
}
