// Package worklog posts usage records to an external time-tracking sink.
// Delivery is fire-and-forget: a short timeout, no retries, errors ignored.
package worklog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Record is one completed task execution.
type Record struct {
	Project     string  `json:"project"`
	Description string  `json:"description"`
	TaskType    string  `json:"task_type"`
	ActualHours float64 `json:"actual_hours"`
	Timestamp   int64   `json:"timestamp"`
}

type Client struct {
	url     string
	apiKey  string
	project string
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client, or nil when url is empty (reporting disabled). A nil
// client is safe to call.
func New(url, apiKey, project string, logger *slog.Logger) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:     url,
		apiKey:  apiKey,
		project: project,
		http:    &http.Client{Timeout: 3 * time.Second},
		logger:  logger,
	}
}

// Post sends one usage record. Failures never propagate.
func (c *Client) Post(description, taskType string, actualHours float64) {
	if c == nil {
		return
	}

	rec := Record{
		Project:     c.project,
		Description: description,
		TaskType:    taskType,
		ActualHours: actualHours,
		Timestamp:   time.Now().UnixMilli(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-WL-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("worklog post failed", "error", err)
		return
	}
	_ = resp.Body.Close()
}
