// Package alert fires structured alerts when a task fails terminally or
// stalls. Delivery is at-most-once and best-effort: a failed write never
// affects task state and is surfaced only at debug level.
package alert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Alert is one JSON line in the notify drain, consumed by an external
// notification forwarder.
type Alert struct {
	Type     string `json:"type"`
	TaskID   int64  `json:"task_id"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
	TS       string `json:"ts"`
}

type Emitter struct {
	drainPath string
	logPath   string
	logger    *slog.Logger
}

// NewEmitter writes alerts to two files: a JSONL drain for machine
// consumption and a parallel human-readable log served by GET /alerts.
func NewEmitter(drainPath, logPath string, logger *slog.Logger) *Emitter {
	return &Emitter{
		drainPath: drainPath,
		logPath:   logPath,
		logger:    logger,
	}
}

// Fire records one alert. Errors are swallowed.
func (e *Emitter) Fire(taskID int64, reason string, attempts int) {
	ts := time.Now().Format("2006-01-02T15:04:05")

	a := Alert{
		Type:     "agent_alert",
		TaskID:   taskID,
		Reason:   reason,
		Attempts: attempts,
		TS:       ts,
	}
	if line, err := json.Marshal(a); err == nil {
		if err := appendLine(e.drainPath, string(line)); err != nil {
			e.logger.Debug("alert drain write failed", "error", err)
		}
	}

	human := fmt.Sprintf("[%s] ALERT task=%d attempts=%d reason=%s", ts, taskID, attempts, reason)
	if err := appendLine(e.logPath, human); err != nil {
		e.logger.Debug("alerts log write failed", "error", err)
	}
}

func appendLine(path, line string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
