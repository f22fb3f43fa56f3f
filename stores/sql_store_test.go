package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/veritaslab/warden"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLPolicyStoreGrants(t *testing.T) {
	ctx := context.Background()
	store := NewSQLPolicyStore(newTestDB(t))

	g := warden.Grant{Role: "member", Domain: "org1", Resource: "posts", Action: "read"}
	if err := store.AddGrant(ctx, g); err != nil {
		t.Fatalf("add grant: %v", err)
	}
	// duplicate insert is a no-op
	if err := store.AddGrant(ctx, g); err != nil {
		t.Fatalf("re-add grant: %v", err)
	}
	if err := store.AddGrant(ctx, warden.Grant{Role: "member", Domain: "org2", Resource: "posts", Action: "read"}); err != nil {
		t.Fatalf("add grant: %v", err)
	}

	grants, err := store.ListGrants(ctx, "org1")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 1 || grants[0] != g {
		t.Fatalf("unexpected grants: %v", grants)
	}

	roleGrants, err := store.ListRoleGrants(ctx, "member", "org1")
	if err != nil {
		t.Fatalf("list role grants: %v", err)
	}
	if len(roleGrants) != 1 {
		t.Fatalf("expected 1 role grant, got %d", len(roleGrants))
	}

	removed, err := store.RemoveGrant(ctx, g)
	if err != nil || !removed {
		t.Fatalf("remove grant = %v, %v", removed, err)
	}
	removed, err = store.RemoveGrant(ctx, g)
	if err != nil {
		t.Fatalf("remove grant: %v", err)
	}
	if removed {
		t.Fatalf("expected second removal to report nothing removed")
	}
}

func TestSQLPolicyStoreDenies(t *testing.T) {
	ctx := context.Background()
	store := NewSQLPolicyStore(newTestDB(t))

	d := warden.Deny{
		Domain:    "org1",
		Resource:  "posts",
		Action:    "read",
		Severity:  warden.SeverityMajor,
		Reason:    "abuse",
		CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.AddDeny(ctx, d); err != nil {
		t.Fatalf("add deny: %v", err)
	}
	// re-adding the same tuple replaces, never duplicates
	d.Reason = "repeat abuse"
	if err := store.AddDeny(ctx, d); err != nil {
		t.Fatalf("re-add deny: %v", err)
	}

	denies, err := store.ListDenies(ctx, "org1")
	if err != nil {
		t.Fatalf("list denies: %v", err)
	}
	if len(denies) != 1 {
		t.Fatalf("expected 1 deny, got %d", len(denies))
	}
	got := denies[0]
	if got.Reason != "repeat abuse" || got.Severity != warden.SeverityMajor {
		t.Fatalf("unexpected deny: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at lost in round trip")
	}

	removed, err := store.RemoveDeny(ctx, "org1", "posts", "read")
	if err != nil || !removed {
		t.Fatalf("remove deny = %v, %v", removed, err)
	}
	removed, err = store.RemoveDeny(ctx, "org1", "posts", "read")
	if err != nil {
		t.Fatalf("remove deny: %v", err)
	}
	if removed {
		t.Fatalf("expected second removal to report nothing removed")
	}
}

func TestSQLPolicyStoreAssignments(t *testing.T) {
	ctx := context.Background()
	store := NewSQLPolicyStore(newTestDB(t))

	for _, a := range []warden.RoleAssignment{
		{UserID: "u1", Role: "member", Domain: "org1"},
		{UserID: "u1", Role: "viewer", Domain: "org1"},
		{UserID: "u1", Role: "owner", Domain: "org2"},
		{UserID: "u2", Role: "admin", Domain: "org1"},
	} {
		if err := store.AssignRole(ctx, a); err != nil {
			t.Fatalf("assign %v: %v", a, err)
		}
	}

	got, err := store.ListUserAssignments(ctx, "u1", "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %v", got)
	}

	removed, err := store.RemoveUserAssignments(ctx, "u1", "org1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", removed)
	}
	got, err = store.ListUserAssignments(ctx, "u1", "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no assignments left, got %v", got)
	}
	// other user and other domain untouched
	got, err = store.ListUserAssignments(ctx, "u2", "org1")
	if err != nil || len(got) != 1 {
		t.Fatalf("u2 assignments = %v, %v", got, err)
	}
	got, err = store.ListUserAssignments(ctx, "u1", "org2")
	if err != nil || len(got) != 1 {
		t.Fatalf("u1 org2 assignments = %v, %v", got, err)
	}

	if err := store.ClearDomainAssignments(ctx, "org1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = store.ListUserAssignments(ctx, "u2", "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected domain cleared, got %v", got)
	}
}

func TestSQLAuditStoreChainRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLAuditStore(newTestDB(t))
	chain := warden.NewAuditChain(store)

	actor := warden.Actor{ID: "admin-1", IP: "203.0.113.7", UserAgent: "warden-test/1.0"}
	if _, err := chain.PolicyAdded(ctx, actor, "org1", "member", "posts", "read", warden.EffectAllow, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := chain.PolicyAdded(ctx, actor, "org1", "", "posts", "read", warden.EffectDeny,
		map[string]string{"severity": "major", "reason": "abuse"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := chain.PermissionDenied(ctx, "u1", "org1", "posts", "read"); err != nil {
		t.Fatalf("append: %v", err)
	}

	// verification recomputes hashes from what sqlite stored, so any lossy
	// column round trip would surface here
	report, err := chain.VerifyChain(ctx, "org1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Valid {
		t.Fatalf("chain broken at %d after sqlite round trip", report.BrokenAt)
	}

	last, err := store.LastRecord(ctx, "org1")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last == nil || last.Sequence != 3 {
		t.Fatalf("unexpected chain head: %+v", last)
	}
	if last.Event != warden.EventPermissionDenied {
		t.Fatalf("unexpected head event: %s", last.Event)
	}

	none, err := store.LastRecord(ctx, "org-without-records")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil head for empty domain, got %+v", none)
	}

	records, err := store.ListRecords(ctx, "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].Details["reason"] != "abuse" {
		t.Fatalf("details lost: %v", records[1].Details)
	}
	if records[1].ActorIP != actor.IP || records[1].ActorUserAgent != actor.UserAgent {
		t.Fatalf("actor context lost: %+v", records[1])
	}
}

func TestSQLAuditStoreQuery(t *testing.T) {
	ctx := context.Background()
	store := NewSQLAuditStore(newTestDB(t))
	chain := warden.NewAuditChain(store)

	for i := 0; i < 4; i++ {
		if _, err := chain.PermissionGranted(ctx, "u1", "org1", "posts", "read"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := chain.PermissionDenied(ctx, "u2", "org1", "files", "delete"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := chain.PermissionGranted(ctx, "u1", "org2", "posts", "read"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := store.Query(ctx, warden.AuditFilter{Domain: "org1", Event: warden.EventPermissionDenied})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].ActorID != "u2" {
		t.Fatalf("event filter failed: %v", out)
	}

	out, err = store.Query(ctx, warden.AuditFilter{Domain: "org1", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("limit ignored: got %d", len(out))
	}

	domains, err := store.ListDomains(ctx)
	if err != nil {
		t.Fatalf("domains: %v", err)
	}
	if len(domains) != 2 || domains[0] != "org1" || domains[1] != "org2" {
		t.Fatalf("unexpected domains: %v", domains)
	}
}

func TestSQLAuditStoreRejectsSequenceConflict(t *testing.T) {
	ctx := context.Background()
	store := NewSQLAuditStore(newTestDB(t))

	rec := &warden.AuditRecord{
		ID: "a", Domain: "org1", Sequence: 1, Timestamp: time.Now(),
		ActorID: "u1", Event: warden.EventPermissionGranted,
		PrevHash: warden.GenesisHash, Hash: "h1",
	}
	if err := store.AppendRecord(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	dup := *rec
	dup.ID = "b"
	if err := store.AppendRecord(ctx, &dup); err == nil {
		t.Fatalf("expected duplicate sequence to be rejected")
	}
}
