// Package dispatch owns the execution lifecycle of queued tasks: claim,
// execute, classify, retry or fail.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sayvdo/overseer/internal/alert"
	"github.com/sayvdo/overseer/internal/director"
	"github.com/sayvdo/overseer/internal/memory"
	"github.com/sayvdo/overseer/internal/queue"
	"github.com/sayvdo/overseer/internal/worklog"
)

// maxAttempts caps executions per task: fail once, retry once, then fail
// permanently. No backoff, no jitter; a requeued task is picked up by the
// next pass.
const maxAttempts = 2

type Dispatcher struct {
	queue    *queue.Queue
	memory   *memory.Store
	alerts   *alert.Emitter
	worklog  *worklog.Client
	registry *director.Registry
	logger   *slog.Logger

	// stallAlerted remembers which running tasks already triggered a stall
	// alert so the monitor fires at most once per task.
	stallAlerted map[int64]struct{}
}

func New(q *queue.Queue, mem *memory.Store, alerts *alert.Emitter, wl *worklog.Client, reg *director.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:        q,
		memory:       mem,
		alerts:       alerts,
		worklog:      wl,
		registry:     reg,
		logger:       logger,
		stallAlerted: make(map[int64]struct{}),
	}
}

// ProcessPending executes every pending task for one director, serially in
// FIFO order. Individual task failures never abort the pass.
func (d *Dispatcher) ProcessPending(ctx context.Context, directorName string) error {
	dir, ok := d.registry.Get(directorName)
	if !ok {
		return fmt.Errorf("unknown director %q", directorName)
	}

	tasks, err := d.queue.GetPending(ctx, directorName)
	if err != nil {
		return fmt.Errorf("fetch pending for %s: %w", directorName, err)
	}

	for i := range tasks {
		d.executeTask(ctx, dir, &tasks[i])
	}
	return nil
}

// executeTask runs one task through its director and applies the retry
// policy.
func (d *Dispatcher) executeTask(ctx context.Context, dir director.Director, task *queue.Task) {
	taskLogger := d.logger.With("task_id", task.ID, "director", dir.Name())

	if err := d.queue.Claim(ctx, task.ID); err != nil {
		// Another pass claimed it first; nothing to do.
		taskLogger.Debug("claim skipped", "error", err)
		return
	}
	attempt := task.Attempts + 1
	taskLogger.Info("executing task", "attempt", attempt)

	start := time.Now()
	result, err := dir.RunTask(ctx, task)
	elapsed := time.Since(start)

	if err != nil {
		d.handleFailure(ctx, task, attempt, err, taskLogger)
		return
	}

	if _, ferr := d.queue.Finish(ctx, task.ID, queue.StatusDone, result); ferr != nil {
		taskLogger.Error("failed to persist result", "error", ferr)
		return
	}

	memKey := fmt.Sprintf("task_%d_result", task.ID)
	if merr := d.memory.Write(ctx, dir.Name(), memKey, result); merr != nil {
		taskLogger.Warn("memory write failed", "key", memKey, "error", merr)
	}

	desc := fmt.Sprintf("[%s] %s: %s", dir.Name(), task.TaskType, truncate(task.PayloadString("prompt"), 80))
	d.worklog.Post(desc, "agent", elapsed.Hours())

	taskLogger.Info("task done", "elapsed_ms", elapsed.Milliseconds())
}

func (d *Dispatcher) handleFailure(ctx context.Context, task *queue.Task, attempt int, execErr error, taskLogger *slog.Logger) {
	if attempt >= maxAttempts {
		if _, err := d.queue.Finish(ctx, task.ID, queue.StatusFailed, execErr.Error()); err != nil {
			taskLogger.Error("failed to mark task failed", "error", err)
			return
		}
		d.alerts.Fire(task.ID, execErr.Error(), attempt)
		taskLogger.Error("task failed permanently", "attempt", attempt, "error", execErr)
		return
	}

	if err := d.queue.Requeue(ctx, task.ID); err != nil {
		taskLogger.Error("failed to requeue task", "error", err)
		return
	}
	taskLogger.Warn("task requeued for retry", "attempt", attempt, "error", execErr)
}

// StallCheck fires an alert for every running task whose last status write
// is older than maxAge. Alert-only: the task row is not touched, since the
// owning process may still be working.
func (d *Dispatcher) StallCheck(ctx context.Context, maxAge time.Duration) error {
	tasks, err := d.queue.StaleRunning(ctx, maxAge)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if _, done := d.stallAlerted[t.ID]; done {
			continue
		}
		d.stallAlerted[t.ID] = struct{}{}
		reason := fmt.Sprintf("stalled: running for more than %s", maxAge)
		d.alerts.Fire(t.ID, reason, t.Attempts)
		d.logger.Warn("stalled task detected", "task_id", t.ID, "director", t.AssignedTo)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
