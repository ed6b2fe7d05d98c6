package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ahjosync/internal/domain"
	"ahjosync/internal/events"
	"ahjosync/internal/queue"
)

// ErrSuspended is returned by an Executor when the remote system is
// unreachable. It stops the whole queue run, not just the current
// task, and is never treated as a per-task failure.
var ErrSuspended = errors.New("remote system unreachable; run suspended")

// Outcome is the completion report of one synchronization unit.
type Outcome struct {
	Completed bool
	Code      string
}

// Executor performs one synchronization unit of work: an id-list
// import of the given task type.
type Executor interface {
	Execute(ctx context.Context, taskType string, ids []string) (Outcome, error)
}

// Marker receives derived-content invalidation signals.
type Marker interface {
	MarkDerivedContentStale(ctx context.Context, recordType, naturalKey string) error
}

// Windows are the max-retry windows before a failed task escalates to
// its queue's fallback, keyed by task origin.
type Windows struct {
	Notification time.Duration
	Bulk         time.Duration
}

// TaskError is a per-task failure. Retryable tasks stay claimed in
// their queue and come back once the claim lease lapses; terminal ones
// sit in the error queue for manual inspection.
type TaskError struct {
	TaskID    string
	EntityID  string
	Queue     domain.Queue
	Retryable bool
	Err       error
}

func (e *TaskError) Error() string {
	state := "terminal"
	if e.Retryable {
		state = "retryable"
	}
	return fmt.Sprintf("task %s (%s) in %s queue: %s failure: %v", e.TaskID, e.EntityID, e.Queue, state, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Stats summarizes one queue run.
type Stats struct {
	Claimed   int
	Completed int
	Escalated int
	Failures  []*TaskError
}

// Worker drains one queue, one claimed task at a time.
type Worker struct {
	ID      string
	Queue   *queue.Manager
	Exec    Executor
	Marker  Marker
	Windows Windows
	Events  events.Writer
	Now     func() time.Time
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run claims and processes tasks until the queue drains. A suspend
// signal from the executor aborts the run immediately, leaving the
// current and remaining tasks in place. Per-task failures are
// collected into Stats and do not stop the run.
func (w *Worker) Run(ctx context.Context, q domain.Queue) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			// Claimed-but-unprocessed tasks stay claimed; the
			// lease expiry brings them back for a later run.
			return stats, err
		}
		t, err := w.Queue.Claim(ctx, q, w.ID)
		if errors.Is(err, queue.ErrNotFound) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("claim from %s: %w", q, err)
		}
		stats.Claimed++
		switch err := w.ProcessItem(ctx, t); {
		case err == nil:
			stats.Completed++
		case errors.Is(err, ErrSuspended):
			return stats, err
		case errors.Is(err, errEscalated):
			stats.Escalated++
		default:
			var te *TaskError
			if errors.As(err, &te) {
				stats.Failures = append(stats.Failures, te)
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				continue
			}
			return stats, err
		}
	}
}

// errEscalated marks a failed task that was moved to its fallback
// queue; from this queue's point of view it was handled.
var errEscalated = errors.New("task escalated")

// ProcessItem executes one claimed task. On success the task is
// deleted; on failure it either escalates past its max-retry window or
// surfaces a TaskError so the scheduler retries it in place.
func (w *Worker) ProcessItem(ctx context.Context, t domain.QueueTask) error {
	outcome, err := w.Exec.Execute(ctx, t.Payload.Type, []string{t.Payload.EntityID})
	if err != nil {
		if errors.Is(err, ErrSuspended) {
			return err
		}
		if ctx.Err() != nil {
			return &TaskError{TaskID: t.ID, EntityID: t.Payload.EntityID, Queue: t.Queue, Retryable: true, Err: ctx.Err()}
		}
		return w.fail(ctx, t, err)
	}
	if !outcome.Completed {
		return w.fail(ctx, t, fmt.Errorf("executor reported failure: %s", outcome.Code))
	}
	if err := w.Queue.Delete(ctx, t.ID); err != nil && !errors.Is(err, queue.ErrNotFound) {
		return fmt.Errorf("delete task %s: %w", t.ID, err)
	}
	_ = w.Events.Append(ctx, "task.completed", string(t.Queue), t.Payload.EntityID, events.Payload{
		"task_id": t.ID,
		"type":    t.Payload.Type,
	})
	// Re-queued meeting updates deliberately skip the regeneration
	// signal; the first pass already sent it.
	if w.Marker != nil && t.Payload.Type == "meeting" && t.Payload.Change == "Updated" && !t.Payload.Moved {
		if err := w.Marker.MarkDerivedContentStale(ctx, "meeting", t.Payload.EntityID); err != nil {
			return fmt.Errorf("mark derived content stale for %s: %w", t.Payload.EntityID, err)
		}
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, t domain.QueueTask, cause error) error {
	fallback, hasFallback := t.Queue.Fallback()
	if !hasFallback {
		_ = w.Events.Append(ctx, "task.failed", string(t.Queue), t.Payload.EntityID, events.Payload{
			"task_id":  t.ID,
			"type":     t.Payload.Type,
			"terminal": true,
			"error":    cause.Error(),
		})
		return &TaskError{TaskID: t.ID, EntityID: t.Payload.EntityID, Queue: t.Queue, Retryable: false, Err: cause}
	}
	if w.withinWindow(t) {
		_ = w.Events.Append(ctx, "task.failed", string(t.Queue), t.Payload.EntityID, events.Payload{
			"task_id": t.ID,
			"type":    t.Payload.Type,
			"error":   cause.Error(),
		})
		return &TaskError{TaskID: t.ID, EntityID: t.Payload.EntityID, Queue: t.Queue, Retryable: true, Err: cause}
	}
	if err := w.Queue.Move(ctx, t, fallback); err != nil {
		return fmt.Errorf("escalate task %s: %w", t.ID, err)
	}
	return errEscalated
}

// withinWindow reports whether the task is still young enough to be
// retried in its current queue. A missing creation timestamp counts as
// infinitely old.
func (w *Worker) withinWindow(t domain.QueueTask) bool {
	created, ok := t.Created()
	if !ok {
		return false
	}
	window := w.Windows.Bulk
	if t.Payload.Origin == domain.OriginNotification {
		window = w.Windows.Notification
	}
	if window <= 0 {
		return false
	}
	return w.now().Sub(created) <= window
}
