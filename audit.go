package warden

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEvent names the kind of mutation or decision a record captures.
type AuditEvent string

const (
	EventPolicyAdded       AuditEvent = "policy_added"
	EventPolicyRemoved     AuditEvent = "policy_removed"
	EventPermissionGranted AuditEvent = "permission_granted"
	EventPermissionDenied  AuditEvent = "permission_denied"
	EventRoleAssigned      AuditEvent = "role_assigned"
	EventRoleRemoved       AuditEvent = "role_removed"
)

// GenesisHash is the fixed PrevHash of the first record in every domain chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditRecord is one immutable entry in a domain's hash chain. Records are
// append-only: there is no API to update or delete one, and any out-of-band
// edit is detectable because Hash covers PrevHash plus every content field.
type AuditRecord struct {
	ID             string            `json:"id"`
	Domain         string            `json:"domain"`
	Sequence       int64             `json:"sequence"`
	Timestamp      time.Time         `json:"timestamp"`
	ActorID        string            `json:"actor_id"`
	ActorIP        string            `json:"actor_ip,omitempty"`
	ActorUserAgent string            `json:"actor_user_agent,omitempty"`
	Event          AuditEvent        `json:"event"`
	Role           string            `json:"role,omitempty"`
	Resource       string            `json:"resource,omitempty"`
	Action         string            `json:"action,omitempty"`
	Effect         Effect            `json:"effect,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
	PrevHash       string            `json:"prev_hash"`
	Hash           string            `json:"hash"`
}

// AuditFilter narrows an audit query. Zero values are ignored.
type AuditFilter struct {
	Domain    string
	Event     AuditEvent
	ActorID   string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// AuditStore persists chain records. Appends must fail on a duplicate
// (domain, sequence) pair; the chain serializes writers above this interface.
type AuditStore interface {
	AppendRecord(ctx context.Context, rec *AuditRecord) error
	// LastRecord returns the highest-sequence record for the domain, or
	// (nil, nil) when the domain has no records yet.
	LastRecord(ctx context.Context, domain string) (*AuditRecord, error)
	// ListRecords returns the domain's records in ascending sequence order.
	ListRecords(ctx context.Context, domain string) ([]*AuditRecord, error)
	ListDomains(ctx context.Context) ([]string, error)
	Query(ctx context.Context, f AuditFilter) ([]*AuditRecord, error)
}

// ChainReport is the result of replaying a chain.
type ChainReport struct {
	Valid    bool   `json:"valid"`
	Domain   string `json:"domain,omitempty"`
	BrokenAt int64  `json:"broken_at,omitempty"`
}

// AuditChain appends tamper-evident records. Each domain carries its own
// sequence and chain; appends within a process are serialized by a mutex so
// two records never claim the same predecessor.
type AuditChain struct {
	store AuditStore
	mu    sync.Mutex
	now   func() time.Time
}

func NewAuditChain(store AuditStore) *AuditChain {
	return &AuditChain{store: store, now: time.Now}
}

// canonicalPayload is the stable byte serialization hashed into a record:
// every content field in fixed order, joined by the unit separator (0x1f),
// with the timestamp as Unix nanoseconds and details as encoding/json output
// (Go marshals map keys sorted, so the bytes are reproducible). Verification
// re-derives this from stored field values; a stored hash is never trusted.
func canonicalPayload(rec *AuditRecord) []byte {
	details := ""
	if len(rec.Details) > 0 {
		b, _ := json.Marshal(rec.Details)
		details = string(b)
	}
	fields := []string{
		rec.ID,
		rec.Domain,
		strconv.FormatInt(rec.Sequence, 10),
		strconv.FormatInt(rec.Timestamp.UnixNano(), 10),
		rec.ActorID,
		rec.ActorIP,
		rec.ActorUserAgent,
		string(rec.Event),
		rec.Role,
		rec.Resource,
		rec.Action,
		string(rec.Effect),
		details,
	}
	return []byte(strings.Join(fields, "\x1f"))
}

func chainHash(prevHash string, rec *AuditRecord) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonicalPayload(rec))
	return hex.EncodeToString(h.Sum(nil))
}

// Append assigns sequence, prev hash and hash, then persists the record.
// ID and Timestamp are filled in when left empty.
func (c *AuditChain) Append(ctx context.Context, rec *AuditRecord) (*AuditRecord, error) {
	if rec.Domain == "" {
		return nil, fmt.Errorf("audit append: domain is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	last, err := c.store.LastRecord(ctx, rec.Domain)
	if err != nil {
		return nil, fmt.Errorf("audit append: read chain head: %w", err)
	}
	if last == nil {
		rec.Sequence = 1
		rec.PrevHash = GenesisHash
	} else {
		rec.Sequence = last.Sequence + 1
		rec.PrevHash = last.Hash
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	rec.Hash = chainHash(rec.PrevHash, rec)

	if err := c.store.AppendRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit append: %w", err)
	}
	return rec, nil
}

// VerifyChain replays one domain's records in sequence order, recomputing
// every hash from stored fields. It reports the first mismatch and does not
// attempt repair.
func (c *AuditChain) VerifyChain(ctx context.Context, domain string) (ChainReport, error) {
	records, err := c.store.ListRecords(ctx, domain)
	if err != nil {
		return ChainReport{}, fmt.Errorf("audit verify: %w", err)
	}
	prev := GenesisHash
	for _, rec := range records {
		if rec.PrevHash != prev || chainHash(rec.PrevHash, rec) != rec.Hash {
			return ChainReport{Valid: false, Domain: domain, BrokenAt: rec.Sequence}, nil
		}
		prev = rec.Hash
	}
	return ChainReport{Valid: true, Domain: domain}, nil
}

// VerifyAllChains verifies every domain, returning the first broken chain.
func (c *AuditChain) VerifyAllChains(ctx context.Context) (ChainReport, error) {
	domains, err := c.store.ListDomains(ctx)
	if err != nil {
		return ChainReport{}, fmt.Errorf("audit verify: %w", err)
	}
	for _, d := range domains {
		report, err := c.VerifyChain(ctx, d)
		if err != nil {
			return ChainReport{}, err
		}
		if !report.Valid {
			return report, nil
		}
	}
	return ChainReport{Valid: true}, nil
}

// Query exposes filtered read access to the underlying store.
func (c *AuditChain) Query(ctx context.Context, f AuditFilter) ([]*AuditRecord, error) {
	return c.store.Query(ctx, f)
}

// Entry points. Each captures the acting identity plus the specific delta.

func (c *AuditChain) PolicyAdded(ctx context.Context, actor Actor, domain, role, resource, action string, effect Effect, details map[string]string) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: actor.ID, ActorIP: actor.IP, ActorUserAgent: actor.UserAgent,
		Event: EventPolicyAdded, Role: role, Resource: resource, Action: action, Effect: effect,
		Details: details,
	})
}

func (c *AuditChain) PolicyRemoved(ctx context.Context, actor Actor, domain, role, resource, action string, effect Effect) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: actor.ID, ActorIP: actor.IP, ActorUserAgent: actor.UserAgent,
		Event: EventPolicyRemoved, Role: role, Resource: resource, Action: action, Effect: effect,
	})
}

func (c *AuditChain) PermissionGranted(ctx context.Context, subjectID, domain, resource, action string) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: subjectID,
		Event: EventPermissionGranted, Resource: resource, Action: action, Effect: EffectAllow,
	})
}

func (c *AuditChain) PermissionDenied(ctx context.Context, subjectID, domain, resource, action string) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: subjectID,
		Event: EventPermissionDenied, Resource: resource, Action: action, Effect: EffectDeny,
	})
}

func (c *AuditChain) RoleAssigned(ctx context.Context, actor Actor, domain, userID, role string) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: actor.ID, ActorIP: actor.IP, ActorUserAgent: actor.UserAgent,
		Event: EventRoleAssigned, Role: role, Details: map[string]string{"user_id": userID},
	})
}

func (c *AuditChain) RoleRemoved(ctx context.Context, actor Actor, domain, userID, role string) (*AuditRecord, error) {
	return c.Append(ctx, &AuditRecord{
		Domain: domain, ActorID: actor.ID, ActorIP: actor.IP, ActorUserAgent: actor.UserAgent,
		Event: EventRoleRemoved, Role: role, Details: map[string]string{"user_id": userID},
	})
}
