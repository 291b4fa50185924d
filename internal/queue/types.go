package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a task in this status may never transition again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Task is one row of the task queue. AssignedTo is fixed at enqueue time;
// only the dispatch loop for that director mutates the row afterwards.
type Task struct {
	ID         int64
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	AssignedTo string
	TaskType   string
	Payload    json.RawMessage
	Status     Status
	Result     *string
	Attempts   int
}

// Payload field accessors. Payloads are free-form JSON objects; directors
// pull out the keys they understand and ignore the rest.

// PayloadString returns the string value for key in the task payload, or ""
// if the payload is empty, malformed, or the key is missing.
func (t *Task) PayloadString(key string) string {
	if len(t.Payload) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(t.Payload, &m); err != nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

var ErrTaskNotFound = errors.New("task not found")

// StatusCounts aggregates the queue by status for reporting.
type StatusCounts struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Running int `json:"running"`
}

// DirectorCounts aggregates one director's tasks for reporting.
type DirectorCounts struct {
	Total  int `json:"total"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}
