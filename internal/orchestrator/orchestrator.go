// Package orchestrator drives one task end to end: approval gate, routing,
// enqueue, dispatch, then polling until the task is terminal or the
// wall-clock budget runs out.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sayvdo/overseer/internal/alert"
	"github.com/sayvdo/overseer/internal/approval"
	"github.com/sayvdo/overseer/internal/audit"
	"github.com/sayvdo/overseer/internal/dispatch"
	"github.com/sayvdo/overseer/internal/queue"
	"github.com/sayvdo/overseer/internal/router"
)

// ErrDenied is returned when the approval gate rejects a task. No task row
// is created in that case.
var ErrDenied = errors.New("task denied by user")

// KillReason is the fixed result written by bulk cancellation.
const KillReason = "Killed by --kill-all"

// Outcome is the terminal state of one orchestrated task.
type Outcome struct {
	TaskID   int64
	Director string
	Status   queue.Status
	Result   string
	TimedOut bool
}

type Orchestrator struct {
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	gate       *approval.Gate
	auditLog   *audit.Log
	alerts     *alert.Emitter

	timeout      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(q *queue.Queue, d *dispatch.Dispatcher, gate *approval.Gate, a *audit.Log, alerts *alert.Emitter, timeout, pollInterval time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Orchestrator{
		queue:        q,
		dispatcher:   d,
		gate:         gate,
		auditLog:     a,
		alerts:       alerts,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run processes one free-text task through the full pipeline. A denial
// returns ErrDenied before anything is enqueued. A timeout force-fails the
// task; the in-flight worker invocation is not killed and must enforce its
// own bound.
func (o *Orchestrator) Run(ctx context.Context, text string) (*Outcome, error) {
	runLogger := o.logger.With("run_id", uuid.NewString())

	if approval.Requires(text) {
		if !o.gate.Request(text) {
			_ = o.auditLog.Write("overseer", "task_denied", text, "denied", nil)
			runLogger.Info("task denied at approval gate")
			return nil, ErrDenied
		}
	}

	directorName := router.Route(text)
	_ = o.auditLog.Write("overseer", "route", text, directorName, nil)
	runLogger.Info("task routed", "director", directorName)

	payload, err := json.Marshal(map[string]string{"prompt": text})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	taskID, err := o.queue.Enqueue(ctx, directorName, "user_request", payload)
	if err != nil {
		return nil, err
	}
	runLogger = runLogger.With("task_id", taskID)

	deadline := time.Now().Add(o.timeout)
	for {
		// A pass both starts the task and, after a failure requeued it,
		// retries it on the next loop iteration.
		if err := o.dispatcher.ProcessPending(ctx, directorName); err != nil {
			runLogger.Error("dispatch pass failed", "error", err)
		}

		task, err := o.queue.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		if task.Status.Terminal() {
			return o.finish(directorName, text, task, runLogger), nil
		}

		if time.Now().After(deadline) {
			return o.timeoutTask(ctx, directorName, text, task, runLogger)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

func (o *Orchestrator) finish(directorName, text string, task *queue.Task, runLogger *slog.Logger) *Outcome {
	result := ""
	if task.Result != nil {
		result = *task.Result
	}

	out := &Outcome{
		TaskID:   task.ID,
		Director: directorName,
		Status:   task.Status,
		Result:   result,
	}

	if task.Status == queue.StatusDone {
		_ = o.auditLog.Write(directorName, "task_done", text, "ok", &task.ID)
		runLogger.Info("task completed")
	} else {
		auditResult := result
		if auditResult == "" {
			auditResult = "unknown"
		}
		_ = o.auditLog.Write(directorName, "task_failed", text, auditResult, &task.ID)
		runLogger.Warn("task failed", "reason", result)
	}
	return out
}

func (o *Orchestrator) timeoutTask(ctx context.Context, directorName, text string, task *queue.Task, runLogger *slog.Logger) (*Outcome, error) {
	changed, err := o.queue.Finish(ctx, task.ID, queue.StatusFailed, "Timed out")
	if err != nil {
		return nil, err
	}
	if !changed {
		// The task reached a terminal state while we were deciding to give
		// up. Report what actually happened.
		final, err := o.queue.GetTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		return o.finish(directorName, text, final, runLogger), nil
	}

	o.alerts.Fire(task.ID, "Timed out", task.Attempts)
	_ = o.auditLog.Write(directorName, "timeout", text, "timeout", &task.ID)
	runLogger.Warn("task timed out", "timeout", o.timeout)

	return &Outcome{
		TaskID:   task.ID,
		Director: directorName,
		Status:   queue.StatusFailed,
		Result:   "Timed out",
		TimedOut: true,
	}, nil
}

// KillAll marks every pending task failed with the fixed kill reason.
// Running tasks are untouched.
func (o *Orchestrator) KillAll(ctx context.Context) (int, error) {
	n, err := o.queue.CancelPending(ctx, KillReason)
	if err != nil {
		return 0, err
	}
	_ = o.auditLog.Write("overseer", "kill_all", fmt.Sprintf("Killed %d pending tasks", n), "ok", nil)
	o.logger.Info("bulk cancellation complete", "killed", n)
	return n, nil
}
