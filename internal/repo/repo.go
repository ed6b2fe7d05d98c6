package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ahjosync/internal/domain"
)

// Repo is the local record store. Every write is an upsert keyed by
// the remote system's natural id so re-synchronizing is idempotent.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) UpsertCase(ctx context.Context, c domain.Case) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO cases(id,title,lang,payload,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, lang=excluded.lang, payload=excluded.payload, updated_at=excluded.updated_at`,
		c.ID, c.Title, c.Language, string(payload), r.now().UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	var c domain.Case
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM cases WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	return c, json.Unmarshal([]byte(payload), &c)
}

func (r Repo) UpsertOrganization(ctx context.Context, org domain.Organization) error {
	payload, err := json.Marshal(org)
	if err != nil {
		return err
	}
	existing := 0
	if org.Info.Existing {
		existing = 1
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO organizations(id,name,existing,payload,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, existing=excluded.existing, payload=excluded.payload, updated_at=excluded.updated_at`,
		org.Info.ID, org.Info.Name, existing, string(payload), r.now().UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var org domain.Organization
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM organizations WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return org, ErrNotFound
	}
	if err != nil {
		return org, err
	}
	return org, json.Unmarshal([]byte(payload), &org)
}

func (r Repo) UpsertDecisionmaker(ctx context.Context, dm domain.Decisionmaker) error {
	payload, err := json.Marshal(dm)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO decisionmakers(id,lang,payload,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET lang=excluded.lang, payload=excluded.payload, updated_at=excluded.updated_at`,
		dm.Organization.Info.ID, dm.Language, string(payload), r.now().UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetDecisionmaker(ctx context.Context, id string) (domain.Decisionmaker, error) {
	var dm domain.Decisionmaker
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM decisionmakers WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return dm, ErrNotFound
	}
	if err != nil {
		return dm, err
	}
	return dm, json.Unmarshal([]byte(payload), &dm)
}

// ListDecisionmakerIDs supports composition-only backfills over the
// whole local set.
func (r Repo) ListDecisionmakerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM decisionmakers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpsertTrustee(ctx context.Context, t domain.Trustee) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO trustees(id,name,payload,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, payload=excluded.payload, updated_at=excluded.updated_at`,
		t.ID, t.Name, string(payload), r.now().UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetTrustee(ctx context.Context, id string) (domain.Trustee, error) {
	var t domain.Trustee
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM trustees WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	return t, json.Unmarshal([]byte(payload), &t)
}

// MarkDerivedContentStale records that derived content for a record
// must be regenerated. Marking twice is a no-op.
func (r Repo) MarkDerivedContentStale(ctx context.Context, recordType, naturalKey string) error {
	if recordType == "" || naturalKey == "" {
		return fmt.Errorf("record type and natural key are required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO stale_marks(record_type,natural_key,marked_at) VALUES (?,?,?)
ON CONFLICT(record_type,natural_key) DO UPDATE SET marked_at=excluded.marked_at`,
		recordType, naturalKey, r.now().UTC().Format(time.RFC3339))
	return err
}

// StaleMarks lists pending derived-content invalidations, optionally
// filtered by record type.
func (r Repo) StaleMarks(ctx context.Context, recordType string) ([]string, error) {
	clauses := []string{"1=1"}
	var args []any
	if recordType != "" {
		clauses = append(clauses, "record_type=?")
		args = append(args, recordType)
	}
	query := `SELECT natural_key FROM stale_marks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY marked_at`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// LatestEvents reads the sync audit log, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, queue string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if queue != "" {
		clauses = append(clauses, "queue=?")
		args = append(args, queue)
	}
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,queue,entity_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var queue, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &queue, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		if queue.Valid {
			e.Queue = queue.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
