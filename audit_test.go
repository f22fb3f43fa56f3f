package warden_test

import (
	"context"
	"testing"
	"time"

	"github.com/veritaslab/warden"
	"github.com/veritaslab/warden/stores"
)

func fillChain(t *testing.T, chain *warden.AuditChain, domain string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := chain.PermissionGranted(ctx, "u1", domain, "posts", "read"); err != nil {
			t.Fatalf("append #%d: %v", i, err)
		}
	}
}

func TestChainLinksFromGenesis(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryAuditStore()
	chain := warden.NewAuditChain(store)
	fillChain(t, chain, "org1", 3)

	records, err := store.ListRecords(ctx, "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].PrevHash != warden.GenesisHash {
		t.Fatalf("first record prev hash = %q, want genesis", records[0].PrevHash)
	}
	for i, rec := range records {
		if rec.Sequence != int64(i+1) {
			t.Fatalf("record %d sequence = %d", i, rec.Sequence)
		}
		if rec.ID == "" || rec.Hash == "" {
			t.Fatalf("record %d missing id or hash", i)
		}
		if i > 0 && rec.PrevHash != records[i-1].Hash {
			t.Fatalf("record %d prev hash does not match predecessor", i)
		}
	}
}

func TestVerifyChainAcceptsIntactChain(t *testing.T) {
	ctx := context.Background()
	chain := warden.NewAuditChain(stores.NewMemoryAuditStore())
	fillChain(t, chain, "org1", 10)

	report, err := chain.VerifyChain(ctx, "org1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected intact chain, broken at %d", report.BrokenAt)
	}

	// a domain with no records verifies trivially
	report, err = chain.VerifyChain(ctx, "empty")
	if err != nil {
		t.Fatalf("verify empty: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected empty chain to verify")
	}
}

func TestVerifyChainDetectsFieldTamper(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryAuditStore()
	chain := warden.NewAuditChain(store)
	fillChain(t, chain, "org1", 10)

	if !store.Tamper("org1", 4, func(rec *warden.AuditRecord) {
		rec.Action = "delete"
	}) {
		t.Fatalf("tamper target not found")
	}

	report, err := chain.VerifyChain(ctx, "org1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Valid {
		t.Fatalf("expected tamper to be detected")
	}
	if report.BrokenAt != 4 {
		t.Fatalf("broken at %d, want 4", report.BrokenAt)
	}
}

func TestVerifyChainDetectsRewrittenHash(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryAuditStore()
	chain := warden.NewAuditChain(store)
	fillChain(t, chain, "org1", 5)

	// forge the record hash too: the successor's prev-hash link breaks
	store.Tamper("org1", 2, func(rec *warden.AuditRecord) {
		rec.ActorID = "intruder"
		rec.Hash = "deadbeef"
	})

	report, err := chain.VerifyChain(ctx, "org1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Valid {
		t.Fatalf("expected forged hash to be detected")
	}
}

func TestVerifyAllChains(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryAuditStore()
	chain := warden.NewAuditChain(store)
	fillChain(t, chain, "org1", 3)
	fillChain(t, chain, "org2", 3)

	report, err := chain.VerifyAllChains(ctx)
	if err != nil {
		t.Fatalf("verify all: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected all chains intact")
	}

	store.Tamper("org2", 1, func(rec *warden.AuditRecord) { rec.Resource = "files" })
	report, err = chain.VerifyAllChains(ctx)
	if err != nil {
		t.Fatalf("verify all: %v", err)
	}
	if report.Valid {
		t.Fatalf("expected broken chain to be reported")
	}
	if report.Domain != "org2" || report.BrokenAt != 1 {
		t.Fatalf("report = %+v, want org2 broken at 1", report)
	}
}

func TestDomainsChainIndependently(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryAuditStore()
	chain := warden.NewAuditChain(store)
	fillChain(t, chain, "org1", 4)
	fillChain(t, chain, "org2", 2)

	r1, err := store.ListRecords(ctx, "org1")
	if err != nil {
		t.Fatalf("list org1: %v", err)
	}
	r2, err := store.ListRecords(ctx, "org2")
	if err != nil {
		t.Fatalf("list org2: %v", err)
	}
	if r1[len(r1)-1].Sequence != 4 || r2[len(r2)-1].Sequence != 2 {
		t.Fatalf("sequences leaked across domains: org1=%d org2=%d",
			r1[len(r1)-1].Sequence, r2[len(r2)-1].Sequence)
	}
	if r2[0].PrevHash != warden.GenesisHash {
		t.Fatalf("org2 chain must start from genesis")
	}
}

func TestMutationsAreAudited(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _, as := newTestEnforcer(t, warden.WithClock(func() time.Time { return now }))

	if err := e.SuspendPermission(ctx, testActor, "org1", "posts", "read", warden.SeverityMajor, "abuse"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := e.SyncMemberRole(ctx, testActor, "u1", "org1", warden.RoleMember); err != nil {
		t.Fatalf("sync: %v", err)
	}

	records, err := as.ListRecords(ctx, "org1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	deny := records[0]
	if deny.Event != warden.EventPolicyAdded || deny.Effect != warden.EffectDeny {
		t.Fatalf("unexpected suspension record: %+v", deny)
	}
	if deny.ActorID != testActor.ID || deny.ActorIP != testActor.IP || deny.ActorUserAgent != testActor.UserAgent {
		t.Fatalf("actor context not captured: %+v", deny)
	}
	if deny.Details["severity"] != string(warden.SeverityMajor) || deny.Details["reason"] != "abuse" {
		t.Fatalf("violation details not captured: %v", deny.Details)
	}
	if !deny.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", deny.Timestamp, now)
	}

	assign := records[1]
	if assign.Event != warden.EventRoleAssigned || assign.Role != warden.RoleMember {
		t.Fatalf("unexpected assignment record: %+v", assign)
	}
	if assign.Details["user_id"] != "u1" {
		t.Fatalf("assignment target not captured: %v", assign.Details)
	}
}

func TestEnforceDecisionsAreAudited(t *testing.T) {
	ctx := context.Background()
	e, _, as := newTestEnforcer(t)
	seedAndAssign(t, e, "org1", "u1", warden.RoleMember)

	if _, err := e.Enforce(ctx, "u1", "org1", "posts", "read"); err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if _, err := e.Enforce(ctx, "u1", "org1", "posts", "delete"); err != nil {
		t.Fatalf("enforce: %v", err)
	}

	granted, err := as.Query(ctx, warden.AuditFilter{Domain: "org1", Event: warden.EventPermissionGranted})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(granted) != 1 || granted[0].Action != "read" {
		t.Fatalf("expected one granted record for read, got %v", granted)
	}

	denied, err := as.Query(ctx, warden.AuditFilter{Domain: "org1", Event: warden.EventPermissionDenied})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(denied) != 1 || denied[0].Action != "delete" {
		t.Fatalf("expected one denied record for delete, got %v", denied)
	}
}

func TestAuditQueryFilters(t *testing.T) {
	ctx := context.Background()
	chain := warden.NewAuditChain(stores.NewMemoryAuditStore())
	fillChain(t, chain, "org1", 5)
	if _, err := chain.PermissionDenied(ctx, "u2", "org1", "files", "delete"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := chain.Query(ctx, warden.AuditFilter{Domain: "org1", ActorID: "u2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Event != warden.EventPermissionDenied {
		t.Fatalf("actor filter failed: %v", out)
	}

	out, err = chain.Query(ctx, warden.AuditFilter{Domain: "org1", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("limit ignored: got %d records", len(out))
	}
}
