package dispatch

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayvdo/overseer/internal/alert"
	"github.com/sayvdo/overseer/internal/director"
	"github.com/sayvdo/overseer/internal/dispatch/mocks"
	"github.com/sayvdo/overseer/internal/log"
	"github.com/sayvdo/overseer/internal/memory"
	"github.com/sayvdo/overseer/internal/queue"
	"github.com/sayvdo/overseer/internal/storage"
)

type fixture struct {
	db     *sql.DB
	queue  *queue.Queue
	memory *memory.Store
	alerts *alert.Emitter
	drain  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.OpenSQLite(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.BootstrapSQLite(ctx, db))

	drain := filepath.Join(dir, "drain.jsonl")
	return &fixture{
		db:     db,
		queue:  queue.New(db),
		memory: memory.NewStore(db),
		alerts: alert.NewEmitter(drain, filepath.Join(dir, "alerts.log"), log.WithComponent("alert")),
		drain:  drain,
	}
}

func (f *fixture) dispatcher(dir director.Director) *Dispatcher {
	reg := director.NewRegistry(dir)
	return New(f.queue, f.memory, f.alerts, nil, reg, log.WithComponent("dispatch"))
}

func (f *fixture) enqueue(t *testing.T, assignedTo, prompt string) int64 {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	require.NoError(t, err)
	id, err := f.queue.Enqueue(context.Background(), assignedTo, "user_request", payload)
	require.NoError(t, err)
	return id
}

func (f *fixture) drainedAlerts(t *testing.T) []alert.Alert {
	t.Helper()
	file, err := os.Open(f.drain)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	defer file.Close()

	var alerts []alert.Alert
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var a alert.Alert
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		alerts = append(alerts, a)
	}
	return alerts
}

func namedMock(ctrl *gomock.Controller, name string) *mocks.MockDirector {
	m := mocks.NewMockDirector(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func TestProcessPendingSuccess(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	dir := namedMock(ctrl, "researcher")
	dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return("the answer", nil)

	id := f.enqueue(t, "researcher", "what is SQLite")
	require.NoError(t, f.dispatcher(dir).ProcessPending(ctx, "researcher"))

	task, err := f.queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "the answer", *task.Result)
	assert.Equal(t, 1, task.Attempts)

	stored, err := f.memory.Read(ctx, "researcher", "task_1_result")
	require.NoError(t, err)
	assert.Equal(t, "the answer", stored)
}

func TestProcessPendingRetriesOnceThenSucceeds(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	dir := namedMock(ctrl, "builder")
	gomock.InOrder(
		dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return("", errors.New("generator error: flake")),
		dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return("built", nil),
	)

	id := f.enqueue(t, "builder", "make a thing")
	d := f.dispatcher(dir)

	// First pass fails and requeues.
	require.NoError(t, d.ProcessPending(ctx, "builder"))
	task, err := f.queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts)

	// Second pass succeeds.
	require.NoError(t, d.ProcessPending(ctx, "builder"))
	task, err = f.queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, task.Status)
	assert.Equal(t, 2, task.Attempts)

	assert.Empty(t, f.drainedAlerts(t), "a recovered task must not alert")
}

func TestProcessPendingFailsPermanentlyAfterTwoAttempts(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	dir := namedMock(ctrl, "analyst")
	dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).
		Return("", errors.New("scanner exited 2")).Times(2)

	id := f.enqueue(t, "analyst", "sec scan NVDA")
	d := f.dispatcher(dir)

	require.NoError(t, d.ProcessPending(ctx, "analyst"))
	require.NoError(t, d.ProcessPending(ctx, "analyst"))

	task, err := f.queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "scanner exited 2", *task.Result)
	assert.Equal(t, 2, task.Attempts)

	alerts := f.drainedAlerts(t)
	require.Len(t, alerts, 1, "exactly one alert per permanent failure")
	assert.Equal(t, "agent_alert", alerts[0].Type)
	assert.Equal(t, id, alerts[0].TaskID)
	assert.Equal(t, 2, alerts[0].Attempts)
	assert.Equal(t, "scanner exited 2", alerts[0].Reason)

	// Nothing left to do.
	require.NoError(t, d.ProcessPending(ctx, "analyst"))
	assert.Len(t, f.drainedAlerts(t), 1)
}

func TestProcessPendingRunsFIFO(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	var prompts []string
	dir := namedMock(ctrl, "researcher")
	dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, task *queue.Task) (string, error) {
			prompts = append(prompts, task.PayloadString("prompt"))
			return "ok", nil
		}).Times(3)

	f.enqueue(t, "researcher", "first")
	f.enqueue(t, "researcher", "second")
	f.enqueue(t, "researcher", "third")

	require.NoError(t, f.dispatcher(dir).ProcessPending(ctx, "researcher"))
	assert.Equal(t, []string{"first", "second", "third"}, prompts)
}

func TestProcessPendingIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	dir := namedMock(ctrl, "builder")
	gomock.InOrder(
		dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return("", errors.New("boom")),
		dir.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return("fine", nil),
	)

	bad := f.enqueue(t, "builder", "bad")
	good := f.enqueue(t, "builder", "good")

	require.NoError(t, f.dispatcher(dir).ProcessPending(ctx, "builder"))

	badTask, err := f.queue.GetTask(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, badTask.Status, "failed task requeued")

	goodTask, err := f.queue.GetTask(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, goodTask.Status, "later tasks still ran")
}

func TestProcessPendingUnknownDirector(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	d := f.dispatcher(namedMock(ctrl, "researcher"))
	err := d.ProcessPending(context.Background(), "plumber")
	assert.ErrorContains(t, err, "unknown director")
}

func TestStallCheckAlertsOncePerTask(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	id := f.enqueue(t, "researcher", "slow work")
	require.NoError(t, f.queue.Claim(ctx, id))

	// Backdate the status write so the task looks stalled.
	past := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339Nano)
	_, err := f.db.ExecContext(ctx,
		`UPDATE tasks SET updated_at = ? WHERE id = ?`, past, id)
	require.NoError(t, err)

	d := f.dispatcher(namedMock(ctrl, "researcher"))
	require.NoError(t, d.StallCheck(ctx, 5*time.Minute))
	require.NoError(t, d.StallCheck(ctx, 5*time.Minute))

	alerts := f.drainedAlerts(t)
	require.Len(t, alerts, 1, "repeated checks must not re-alert")
	assert.Equal(t, id, alerts[0].TaskID)
	assert.Contains(t, alerts[0].Reason, "stalled")
}
