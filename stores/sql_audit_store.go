package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/veritaslab/warden"
)

// SQLAuditStore persists chain records. Timestamps are stored as Unix
// nanoseconds so chain verification re-derives byte-identical hash input; the
// unique (domain, sequence) index makes concurrent appends from two processes
// fail loudly instead of forking the chain.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) AppendRecord(ctx context.Context, rec *warden.AuditRecord) error {
	details := ""
	if len(rec.Details) > 0 {
		b, err := json.Marshal(rec.Details)
		if err != nil {
			return err
		}
		details = string(b)
	}
	q := `INSERT INTO audit_log(id, domain, sequence, ts_unix_ns, actor_id, actor_ip, actor_user_agent, event, role, resource, action, effect, details_json, prev_hash, hash)
VALUES(:id, :domain, :sequence, :ts_unix_ns, :actor_id, :actor_ip, :actor_user_agent, :event, :role, :resource, :action, :effect, :details_json, :prev_hash, :hash)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               rec.ID,
		"domain":           rec.Domain,
		"sequence":         rec.Sequence,
		"ts_unix_ns":       rec.Timestamp.UnixNano(),
		"actor_id":         rec.ActorID,
		"actor_ip":         rec.ActorIP,
		"actor_user_agent": rec.ActorUserAgent,
		"event":            string(rec.Event),
		"role":             rec.Role,
		"resource":         rec.Resource,
		"action":           rec.Action,
		"effect":           string(rec.Effect),
		"details_json":     details,
		"prev_hash":        rec.PrevHash,
		"hash":             rec.Hash,
	})
	return err
}

const auditColumns = `id, domain, sequence, ts_unix_ns, actor_id, actor_ip, actor_user_agent, event, role, resource, action, effect, details_json, prev_hash, hash`

func (s *SQLAuditStore) LastRecord(ctx context.Context, domain string) (*warden.AuditRecord, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_log WHERE domain = :domain ORDER BY sequence DESC LIMIT 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"domain": domain})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanAuditRecord(r)
}

func (s *SQLAuditStore) ListRecords(ctx context.Context, domain string) ([]*warden.AuditRecord, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_log WHERE domain = :domain ORDER BY sequence ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"domain": domain})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*warden.AuditRecord, 0)
	for r.Next() {
		rec, err := scanAuditRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLAuditStore) ListDomains(ctx context.Context) ([]string, error) {
	q := `SELECT DISTINCT domain FROM audit_log ORDER BY domain`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var d string
		if err := r.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLAuditStore) Query(ctx context.Context, f warden.AuditFilter) ([]*warden.AuditRecord, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if f.Domain != "" {
		q += " AND domain = :domain"
		params["domain"] = f.Domain
	}
	if f.Event != "" {
		q += " AND event = :event"
		params["event"] = string(f.Event)
	}
	if f.ActorID != "" {
		q += " AND actor_id = :actor_id"
		params["actor_id"] = f.ActorID
	}
	if !f.StartTime.IsZero() {
		q += " AND ts_unix_ns >= :start_ns"
		params["start_ns"] = f.StartTime.UnixNano()
	}
	if !f.EndTime.IsZero() {
		q += " AND ts_unix_ns <= :end_ns"
		params["end_ns"] = f.EndTime.UnixNano()
	}
	q += " ORDER BY domain, sequence"
	if f.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = f.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*warden.AuditRecord, 0)
	for r.Next() {
		rec, err := scanAuditRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditRecord(r rowScanner) (*warden.AuditRecord, error) {
	rec := &warden.AuditRecord{}
	var tsNS int64
	var event, effect, details string
	if err := r.Scan(&rec.ID, &rec.Domain, &rec.Sequence, &tsNS, &rec.ActorID, &rec.ActorIP, &rec.ActorUserAgent,
		&event, &rec.Role, &rec.Resource, &rec.Action, &effect, &details, &rec.PrevHash, &rec.Hash); err != nil {
		return nil, err
	}
	rec.Timestamp = time.Unix(0, tsNS)
	rec.Event = warden.AuditEvent(event)
	rec.Effect = warden.Effect(effect)
	if details != "" {
		_ = json.Unmarshal([]byte(details), &rec.Details)
	}
	return rec, nil
}
