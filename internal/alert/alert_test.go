package alert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayvdo/overseer/internal/log"
)


func TestFireWritesBothFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	drainPath := filepath.Join(dir, "notify.jsonl")
	logPath := filepath.Join(dir, "alerts.log")

	e := NewEmitter(drainPath, logPath, log.WithComponent("alert"))
	e.Fire(42, "generator error: boom", 2)

	drain, err := os.ReadFile(drainPath)
	require.NoError(t, err)

	var a Alert
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(drain))), &a))
	assert.Equal(t, "agent_alert", a.Type)
	assert.Equal(t, int64(42), a.TaskID)
	assert.Equal(t, "generator error: boom", a.Reason)
	assert.Equal(t, 2, a.Attempts)
	assert.NotEmpty(t, a.TS)

	human, err := os.ReadFile(logPath)
	require.NoError(t, err)
	line := strings.TrimSpace(string(human))
	assert.Contains(t, line, "ALERT task=42")
	assert.Contains(t, line, "attempts=2")
	assert.Contains(t, line, "reason=generator error: boom")
}

func TestFireAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	drainPath := filepath.Join(dir, "notify.jsonl")
	logPath := filepath.Join(dir, "alerts.log")

	e := NewEmitter(drainPath, logPath, log.WithComponent("alert"))
	e.Fire(1, "first", 2)
	e.Fire(2, "second", 2)

	drain, err := os.ReadFile(drainPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(drain)), "\n"), 2)
}

func TestFireCreatesParentDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := NewEmitter(filepath.Join(dir, "nested", "notify.jsonl"), filepath.Join(dir, "nested", "alerts.log"), log.WithComponent("alert"))
	e.Fire(1, "x", 1)

	_, err := os.Stat(filepath.Join(dir, "nested", "notify.jsonl"))
	assert.NoError(t, err)
}

func TestFireSwallowsWriteFailures(t *testing.T) {
	t.Parallel()
	// Point at an unwritable location; Fire must not panic or error.
	e := NewEmitter("/proc/nope/notify.jsonl", "/proc/nope/alerts.log", log.WithComponent("alert"))
	e.Fire(1, "x", 1)
}
