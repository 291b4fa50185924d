package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayvdo/overseer/internal/storage"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "overseer.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestEnqueueGetTaskRoundTrip(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"prompt":"research quantum dots"}`)
	id, err := q.Enqueue(ctx, "researcher", "user_request", payload)
	require.NoError(t, err)

	task, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "researcher", task.AssignedTo)
	assert.Equal(t, "user_request", task.TaskType)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Nil(t, task.Result)
	assert.JSONEq(t, string(payload), string(task.Payload))
	assert.Equal(t, "research quantum dots", task.PayloadString("prompt"))
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)

	_, err := q.GetTask(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestGetPendingFIFOAndOwnership(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "analyst", "user_request", nil)
	require.NoError(t, err)

	pending, err := q.GetPending(ctx, "builder")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)

	// Idempotent: a second read without state changes is identical.
	again, err := q.GetPending(ctx, "builder")
	require.NoError(t, err)
	assert.Equal(t, pending, again)
}

func TestClaimIncrementsAttempts(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)

	require.NoError(t, q.Claim(ctx, id))

	task, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.NotNil(t, task.UpdatedAt)

	// A second claim must fail: the task is no longer pending.
	assert.Error(t, q.Claim(ctx, id))
}

func TestRequeueKeepsFIFOPosition(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)

	// Claim and requeue the older task; it must still come back first.
	require.NoError(t, q.Claim(ctx, id1))
	require.NoError(t, q.Requeue(ctx, id1))

	pending, err := q.GetPending(ctx, "builder")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)

	// Requeue does not touch attempts.
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestFinishTerminalGuard(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	require.NoError(t, q.Claim(ctx, id))

	changed, err := q.Finish(ctx, id, StatusDone, "all good")
	require.NoError(t, err)
	assert.True(t, changed)

	task, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "all good", *task.Result)

	// Terminal states are final: a later force-fail is a no-op.
	changed, err = q.Finish(ctx, id, StatusFailed, "Timed out")
	require.NoError(t, err)
	assert.False(t, changed)

	task, err = q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, task.Status)
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)

	_, err := q.Finish(context.Background(), 1, StatusRunning, "")
	assert.Error(t, err)
}

func TestFinishUnknownTask(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)

	_, err := q.Finish(context.Background(), 424242, StatusFailed, "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCancelPendingLeavesRunningUntouched(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	pendingID, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	runningID, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	require.NoError(t, q.Claim(ctx, runningID))

	n, err := q.CancelPending(ctx, "Killed by --kill-all")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancelled, err := q.GetTask(ctx, pendingID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cancelled.Status)
	require.NotNil(t, cancelled.Result)
	assert.Equal(t, "Killed by --kill-all", *cancelled.Result)

	running, err := q.GetTask(ctx, runningID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
}

func TestListTasksNewestFirst(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, "builder", "user_request", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tasks, err := q.ListTasks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, ids[4], tasks[0].ID)
	assert.Equal(t, ids[3], tasks[1].ID)
	assert.Equal(t, ids[2], tasks[2].ID)
}

func TestTimestampsStoredFixedWidth(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	require.NoError(t, q.Claim(ctx, id))

	var createdAt, updatedAt string
	require.NoError(t, q.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM tasks WHERE id = ?;`, id).Scan(&createdAt, &updatedAt))

	// A trimmed fraction would make ".12Z" sort after ".123Z" as a string.
	// The stored form must always carry nine fractional digits.
	assert.Regexp(t, `\.\d{9}Z$`, createdAt)
	assert.Regexp(t, `\.\d{9}Z$`, updatedAt)
}

func TestCountByStatusAndDirector(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	doneID, err := q.Enqueue(ctx, "builder", "user_request", nil)
	require.NoError(t, err)
	require.NoError(t, q.Claim(ctx, doneID))
	_, err = q.Finish(ctx, doneID, StatusDone, "ok")
	require.NoError(t, err)

	failedID, err := q.Enqueue(ctx, "analyst", "user_request", nil)
	require.NoError(t, err)
	require.NoError(t, q.Claim(ctx, failedID))
	_, err = q.Finish(ctx, failedID, StatusFailed, "boom")
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "researcher", "user_request", nil)
	require.NoError(t, err)

	counts, err := q.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 3, Done: 1, Failed: 1, Pending: 1}, counts)

	directors, err := q.CountByDirector(ctx, []string{"builder", "researcher", "analyst"})
	require.NoError(t, err)
	assert.Equal(t, DirectorCounts{Total: 1, Done: 1}, directors["builder"])
	assert.Equal(t, DirectorCounts{Total: 1, Failed: 1}, directors["analyst"])
	assert.Equal(t, DirectorCounts{Total: 1}, directors["researcher"])
}
