// Package stores provides PolicyStore, AuditStore and DecisionCache
// implementations: SQL (squealx), redis, ristretto, and in-memory variants
// for tests and demos.
package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/veritaslab/warden"
)

// MemoryPolicyStore keeps grants, denies and assignments in maps. Safe for
// concurrent use.
type MemoryPolicyStore struct {
	mu          sync.RWMutex
	grants      map[warden.Grant]struct{}
	denies      map[string]warden.Deny // key: domain|resource|action
	assignments []warden.RoleAssignment
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		grants: make(map[warden.Grant]struct{}),
		denies: make(map[string]warden.Deny),
	}
}

func denyKey(domain, resource, action string) string {
	return domain + "\x00" + resource + "\x00" + action
}

func (s *MemoryPolicyStore) AddGrant(ctx context.Context, g warden.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g] = struct{}{}
	return nil
}

func (s *MemoryPolicyStore) RemoveGrant(ctx context.Context, g warden.Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g]; !ok {
		return false, nil
	}
	delete(s.grants, g)
	return true, nil
}

func (s *MemoryPolicyStore) ListGrants(ctx context.Context, domain string) ([]warden.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]warden.Grant, 0)
	for g := range s.grants {
		if g.Domain == domain {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (s *MemoryPolicyStore) ListRoleGrants(ctx context.Context, role, domain string) ([]warden.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]warden.Grant, 0)
	for g := range s.grants {
		if g.Role == role && g.Domain == domain {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) AddDeny(ctx context.Context, d warden.Deny) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denies[denyKey(d.Domain, d.Resource, d.Action)] = d
	return nil
}

func (s *MemoryPolicyStore) RemoveDeny(ctx context.Context, domain, resource, action string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := denyKey(domain, resource, action)
	if _, ok := s.denies[k]; !ok {
		return false, nil
	}
	delete(s.denies, k)
	return true, nil
}

func (s *MemoryPolicyStore) ListDenies(ctx context.Context, domain string) ([]warden.Deny, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]warden.Deny, 0)
	for _, d := range s.denies {
		if d.Domain == domain {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (s *MemoryPolicyStore) AssignRole(ctx context.Context, a warden.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing == a {
			return nil
		}
	}
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *MemoryPolicyStore) RemoveUserAssignments(ctx context.Context, userID, domain string) ([]warden.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]warden.RoleAssignment, 0)
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.UserID == userID && a.Domain == domain {
			removed = append(removed, a)
		} else {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
	return removed, nil
}

func (s *MemoryPolicyStore) ListUserAssignments(ctx context.Context, userID, domain string) ([]warden.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]warden.RoleAssignment, 0)
	for _, a := range s.assignments {
		if a.UserID == userID && a.Domain == domain {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) ClearDomainAssignments(ctx context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.Domain != domain {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
	return nil
}

// DomainAssignments returns every assignment in a domain, for tests.
func (s *MemoryPolicyStore) DomainAssignments(domain string) []warden.RoleAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]warden.RoleAssignment, 0)
	for _, a := range s.assignments {
		if a.Domain == domain {
			out = append(out, a)
		}
	}
	return out
}

// MemoryAuditStore appends records to per-domain slices.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records map[string][]*warden.AuditRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{records: make(map[string][]*warden.AuditRecord)}
}

func (s *MemoryAuditStore) AppendRecord(ctx context.Context, rec *warden.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.Domain] = append(s.records[rec.Domain], &cp)
	return nil
}

func (s *MemoryAuditStore) LastRecord(ctx context.Context, domain string) (*warden.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.records[domain]
	if len(chain) == 0 {
		return nil, nil
	}
	cp := *chain[len(chain)-1]
	return &cp, nil
}

func (s *MemoryAuditStore) ListRecords(ctx context.Context, domain string) ([]*warden.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.records[domain]
	out := make([]*warden.AuditRecord, 0, len(chain))
	for _, rec := range chain {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryAuditStore) ListDomains(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for d := range s.records {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryAuditStore) Query(ctx context.Context, f warden.AuditFilter) ([]*warden.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domains := make([]string, 0)
	if f.Domain != "" {
		domains = append(domains, f.Domain)
	} else {
		for d := range s.records {
			domains = append(domains, d)
		}
		sort.Strings(domains)
	}
	out := make([]*warden.AuditRecord, 0)
	for _, d := range domains {
		for _, rec := range s.records[d] {
			if f.Event != "" && rec.Event != f.Event {
				continue
			}
			if f.ActorID != "" && rec.ActorID != f.ActorID {
				continue
			}
			if !f.StartTime.IsZero() && rec.Timestamp.Before(f.StartTime) {
				continue
			}
			if !f.EndTime.IsZero() && rec.Timestamp.After(f.EndTime) {
				continue
			}
			cp := *rec
			out = append(out, &cp)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Tamper overwrites a stored field, for chain-verification tests only.
func (s *MemoryAuditStore) Tamper(domain string, sequence int64, mutate func(*warden.AuditRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records[domain] {
		if rec.Sequence == sequence {
			mutate(rec)
			return true
		}
	}
	return false
}

// StaticMembers is a fixed in-memory MembershipSource for tests.
type StaticMembers struct {
	mu    sync.RWMutex
	byOrg map[string][]warden.Member
}

func NewStaticMembers() *StaticMembers {
	return &StaticMembers{byOrg: make(map[string][]warden.Member)}
}

func (s *StaticMembers) SetMembers(domain string, members []warden.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrg[domain] = append([]warden.Member(nil), members...)
}

func (s *StaticMembers) ListMembers(ctx context.Context, domain string) ([]warden.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]warden.Member(nil), s.byOrg[domain]...), nil
}
