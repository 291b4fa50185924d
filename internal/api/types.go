package api

import (
	"encoding/json"
	"time"

	"github.com/sayvdo/overseer/internal/queue"
)

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Total     int                             `json:"total"`
	Done      int                             `json:"done"`
	Failed    int                             `json:"failed"`
	Pending   int                             `json:"pending"`
	Running   int                             `json:"running"`
	Directors map[string]queue.DirectorCounts `json:"directors"`
	LastTask  *LastTask                       `json:"last_task"`
	CheckedAt time.Time                       `json:"checked_at"`
}

// LastTask summarizes the most recently created task.
type LastTask struct {
	AssignedTo string    `json:"assigned_to"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskView is one row of GET /api/recent.
type TaskView struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
	AssignedTo string          `json:"assigned_to"`
	TaskType   string          `json:"task_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     string          `json:"status"`
	Result     *string         `json:"result,omitempty"`
	Attempts   int             `json:"attempts"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func taskView(t queue.Task) TaskView {
	return TaskView{
		ID:         t.ID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		AssignedTo: t.AssignedTo,
		TaskType:   t.TaskType,
		Payload:    t.Payload,
		Status:     string(t.Status),
		Result:     t.Result,
		Attempts:   t.Attempts,
	}
}
