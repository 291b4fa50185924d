package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeFormat pads the fractional second to a fixed width. RFC3339Nano trims
// trailing zeros, which breaks the lexicographic ordering and cutoff
// comparisons the queries below rely on.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue creates a task in pending status and returns its id.
func (q *Queue) Enqueue(ctx context.Context, assignedTo, taskType string, payload json.RawMessage) (int64, error) {
	if assignedTo == "" {
		return 0, fmt.Errorf("assigned_to is empty")
	}
	if taskType == "" {
		return 0, fmt.Errorf("task_type is empty")
	}

	now := time.Now().UTC().Format(timeFormat)

	var payloadVal any
	if len(payload) > 0 {
		payloadVal = string(payload)
	}

	res, err := q.db.ExecContext(ctx, `
INSERT INTO tasks(created_at, assigned_to, task_type, payload, status, attempts)
VALUES(?, ?, ?, ?, ?, 0);
`, now, assignedTo, taskType, payloadVal, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue task id: %w", err)
	}
	return id, nil
}

// GetPending returns all pending tasks for a director, oldest first. A task
// requeued after a failure keeps its original created_at, so it competes for
// position by its original enqueue order.
func (q *Queue) GetPending(ctx context.Context, assignedTo string) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, created_at, updated_at, assigned_to, task_type, payload, status, result, attempts
FROM tasks
WHERE assigned_to = ? AND status = ?
ORDER BY created_at ASC, id ASC;
`, assignedTo, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("get pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending tasks: %w", err)
	}
	return tasks, nil
}

// Claim transitions a pending task to running and increments its attempt
// count. Attempts count executions, not status writes: this is the only
// transition that increments.
func (q *Queue) Claim(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeFormat)
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, updated_at = ?, attempts = attempts + 1
WHERE id = ? AND status = ?;
`, StatusRunning, now, id, StatusPending)
	if err != nil {
		return fmt.Errorf("claim task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim task %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("claim task %d: not pending", id)
	}
	return nil
}

// Requeue returns a running task to pending so a later pass retries it.
// created_at is untouched; the task keeps its FIFO slot.
func (q *Queue) Requeue(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeFormat)
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?;
`, StatusPending, now, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("requeue task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue task %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("requeue task %d: not running", id)
	}
	return nil
}

// Finish writes a terminal status and result. Tasks already in a terminal
// state are left alone; the return reports whether the row changed. The
// orchestrator relies on this when a timeout races a completing dispatch.
func (q *Queue) Finish(ctx context.Context, id int64, status Status, result string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("invalid terminal status: %q", status)
	}
	now := time.Now().UTC().Format(timeFormat)
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, result = ?, updated_at = ?
WHERE id = ? AND status NOT IN (?, ?);
`, status, result, now, id, StatusDone, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("finish task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish task %d: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "already terminal" from "no such task".
	if _, err := q.GetTask(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// GetTask returns a task by id, or ErrTaskNotFound.
func (q *Queue) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, created_at, updated_at, assigned_to, task_type, payload, status, result, attempts
FROM tasks
WHERE id = ?;
`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns the most recent tasks, newest first.
func (q *Queue) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT id, created_at, updated_at, assigned_to, task_type, payload, status, result, attempts
FROM tasks
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// CancelPending marks every pending task failed with the given reason and
// returns how many rows changed. Running tasks are untouched.
func (q *Queue) CancelPending(ctx context.Context, reason string) (int, error) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?, result = ?, updated_at = ?
WHERE status = ?;
`, StatusFailed, reason, now, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("cancel pending tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel pending tasks: %w", err)
	}
	return int(n), nil
}

// StaleRunning returns running tasks whose last status write is older than
// maxAge. Used by the stall monitor.
func (q *Queue) StaleRunning(ctx context.Context, maxAge time.Duration) ([]Task, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeFormat)
	rows, err := q.db.QueryContext(ctx, `
SELECT id, created_at, updated_at, assigned_to, task_type, payload, status, result, attempts
FROM tasks
WHERE status = ? AND updated_at IS NOT NULL AND updated_at < ?;
`, StatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale running tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stale running tasks: %w", err)
	}
	return tasks, nil
}

// CountByStatus aggregates the whole queue for reporting.
func (q *Queue) CountByStatus(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status;`)
	if err != nil {
		return c, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("count by status: %w", err)
		}
		c.Total += n
		switch Status(status) {
		case StatusDone:
			c.Done = n
		case StatusFailed:
			c.Failed = n
		case StatusPending:
			c.Pending = n
		case StatusRunning:
			c.Running = n
		}
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("count by status: %w", err)
	}
	return c, nil
}

// CountByDirector aggregates per-director totals for reporting.
func (q *Queue) CountByDirector(ctx context.Context, directors []string) (map[string]DirectorCounts, error) {
	out := make(map[string]DirectorCounts, len(directors))
	for _, name := range directors {
		out[name] = DirectorCounts{}
	}

	rows, err := q.db.QueryContext(ctx, `
SELECT assigned_to, status, COUNT(*)
FROM tasks
GROUP BY assigned_to, status;
`)
	if err != nil {
		return nil, fmt.Errorf("count by director: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, status string
		var n int
		if err := rows.Scan(&name, &status, &n); err != nil {
			return nil, fmt.Errorf("count by director: %w", err)
		}
		c := out[name]
		c.Total += n
		switch Status(status) {
		case StatusDone:
			c.Done += n
		case StatusFailed:
			c.Failed += n
		}
		out[name] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by director: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t          Task
		createdAtS string
		updatedAtS sql.NullString
		payload    sql.NullString
		result     sql.NullString
		statusS    string
	)
	err := row.Scan(
		&t.ID, &createdAtS, &updatedAtS, &t.AssignedTo, &t.TaskType, &payload, &statusS, &result, &t.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.Status = Status(statusS)
	if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		t.CreatedAt = ts
	}
	if updatedAtS.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, updatedAtS.String); err == nil {
			t.UpdatedAt = &ts
		}
	}
	if payload.Valid {
		t.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		t.Result = &result.String
	}
	return &t, nil
}
