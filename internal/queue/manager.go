package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ahjosync/internal/domain"
	"ahjosync/internal/events"
)

var ErrNotFound = errors.New("not found")

// DefaultClaimLease is how long a claim holds before the task becomes
// claimable again. Cancelled workers leave tasks claimed; the lease
// expiry is what brings them back.
const DefaultClaimLease = 15 * time.Minute

// Manager owns the three persisted work queues. De-duplication is a
// best-effort textual scan, not a transactional guarantee; consumers
// tolerate processing the same (id, type) twice because upserts are
// idempotent.
type Manager struct {
	DB         *sql.DB
	Events     events.Writer
	Now        func() time.Time
	ClaimLease time.Duration
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{
		DB:         db,
		Events:     events.Writer{DB: db},
		Now:        time.Now,
		ClaimLease: DefaultClaimLease,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Enqueue inserts a task unless an equivalent one already sits in the
// target queue. It returns the new task id, or dup=true with no insert.
func (m *Manager) Enqueue(ctx context.Context, q domain.Queue, payload domain.TaskPayload) (string, bool, error) {
	if !q.Valid() {
		return "", false, fmt.Errorf("unknown queue %q", q)
	}
	if payload.EntityID == "" || payload.Type == "" {
		return "", false, fmt.Errorf("task id and type are required")
	}
	exists, err := m.Contains(ctx, q, payload.EntityID, payload.Type)
	if err != nil {
		return "", false, err
	}
	if exists {
		_ = m.Events.Append(ctx, "task.duplicate", string(q), payload.EntityID, events.Payload{"type": payload.Type})
		return "", true, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", false, err
	}
	id := uuid.New().String()
	createdAt := m.now().UTC().Format(time.RFC3339)
	if _, err := m.DB.ExecContext(ctx, `INSERT INTO queue_tasks(id,queue,payload,created_at) VALUES (?,?,?,?)`,
		id, string(q), string(data), createdAt); err != nil {
		return "", false, fmt.Errorf("insert task: %w", err)
	}
	_ = m.Events.Append(ctx, "task.enqueued", string(q), payload.EntityID, events.Payload{"task_id": id, "type": payload.Type})
	return id, false, nil
}

// Contains reports whether the queue already holds a task whose stored
// payload contains both the id and the type. Substring matching keeps
// the scan cheap and matches how payloads are serialized.
func (m *Manager) Contains(ctx context.Context, q domain.Queue, entityID, taskType string) (bool, error) {
	row := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM queue_tasks WHERE queue=? AND payload LIKE ? ESCAPE '\' AND payload LIKE ? ESCAPE '\'`,
		string(q), likePattern(entityID), likePattern(taskType))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Claim atomically takes one unclaimed task from the queue. A task
// stays invisible to other claimants until deleted, released, or its
// claim lease lapses. Returns ErrNotFound when the queue is drained.
func (m *Manager) Claim(ctx context.Context, q domain.Queue, workerID string) (domain.QueueTask, error) {
	lease := m.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	now := m.now().UTC()
	cutoff := now.Add(-lease).Format(time.RFC3339)
	row := m.DB.QueryRowContext(ctx, `UPDATE queue_tasks SET claimed_by=?, claimed_at=?
WHERE id = (
    SELECT id FROM queue_tasks
    WHERE queue=? AND (claimed_by IS NULL OR claimed_at < ?)
    ORDER BY created_at, id LIMIT 1
) AND (claimed_by IS NULL OR claimed_at < ?)
RETURNING id, queue, payload, created_at, claimed_by, claimed_at`,
		workerID, now.Format(time.RFC3339), string(q), cutoff, cutoff)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// Release returns a claimed task to the queue without deleting it.
func (m *Manager) Release(ctx context.Context, taskID string) error {
	res, err := m.DB.ExecContext(ctx, `UPDATE queue_tasks SET claimed_by=NULL, claimed_at=NULL WHERE id=?`, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task permanently.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM queue_tasks WHERE id=?`, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Move escalates a task into the fallback queue: the original row is
// deleted and a fresh task, marked moved, is created there. The dedup
// scan still applies; a duplicate in the fallback counts as moved.
func (m *Manager) Move(ctx context.Context, t domain.QueueTask, fallback domain.Queue) error {
	payload := t.Payload
	payload.Moved = true
	if _, _, err := m.Enqueue(ctx, fallback, payload); err != nil {
		return fmt.Errorf("enqueue into %s: %w", fallback, err)
	}
	if err := m.Delete(ctx, t.ID); err != nil {
		return err
	}
	_ = m.Events.Append(ctx, "task.escalated", string(t.Queue), payload.EntityID, events.Payload{
		"task_id": t.ID,
		"type":    payload.Type,
		"to":      string(fallback),
	})
	return nil
}

// Get fetches one task by id.
func (m *Manager) Get(ctx context.Context, taskID string) (domain.QueueTask, error) {
	row := m.DB.QueryRowContext(ctx,
		`SELECT id, queue, payload, created_at, claimed_by, claimed_at FROM queue_tasks WHERE id=?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// List returns every task in a queue, oldest first.
func (m *Manager) List(ctx context.Context, q domain.Queue) ([]domain.QueueTask, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT id, queue, payload, created_at, claimed_by, claimed_at FROM queue_tasks WHERE queue=? ORDER BY created_at, id`, string(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QueueTask
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Counts returns task counts per queue.
func (m *Manager) Counts(ctx context.Context) (map[domain.Queue]int, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT queue, count(*) FROM queue_tasks GROUP BY queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Queue]int{}
	for rows.Next() {
		var q string
		var n int
		if err := rows.Scan(&q, &n); err != nil {
			return nil, err
		}
		res[domain.Queue(q)] = n
	}
	return res, rows.Err()
}

// Clear drops every task in a queue and returns how many were removed.
func (m *Manager) Clear(ctx context.Context, q domain.Queue) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM queue_tasks WHERE queue=?`, string(q))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row *sql.Row) (domain.QueueTask, error) {
	return scanTaskFrom(row)
}

func scanTaskRows(rows *sql.Rows) (domain.QueueTask, error) {
	return scanTaskFrom(rows)
}

func scanTaskFrom(s rowScanner) (domain.QueueTask, error) {
	var t domain.QueueTask
	var queue, payload string
	var createdAt, claimedBy, claimedAt sql.NullString
	if err := s.Scan(&t.ID, &queue, &payload, &createdAt, &claimedBy, &claimedAt); err != nil {
		return t, err
	}
	t.Queue = domain.Queue(queue)
	if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
		return t, fmt.Errorf("task %s payload: %w", t.ID, err)
	}
	if createdAt.Valid {
		t.CreatedAt = createdAt.String
	}
	if claimedBy.Valid {
		t.ClaimedBy = &claimedBy.String
	}
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.String
	}
	return t, nil
}
