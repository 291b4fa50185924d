package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndTail(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	require.NoError(t, err)

	taskID := int64(7)
	require.NoError(t, l.Write("overseer", "route", "research SQLite", "researcher", nil))
	require.NoError(t, l.Write("researcher", "task_done", "research SQLite", "ok", &taskID))

	entries, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "route", entries[0].Action)
	assert.Equal(t, "researcher", entries[0].Result)
	assert.Nil(t, entries[0].TaskID)

	assert.Equal(t, "task_done", entries[1].Action)
	require.NotNil(t, entries[1].TaskID)
	assert.Equal(t, taskID, *entries[1].TaskID)
}

func TestTailReturnsLastN(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Write("overseer", "route", "task", "builder", nil))
	}

	entries, err := l.Tail(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTailMissingFile(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	entries, err := l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetailTruncation(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)

	long := strings.Repeat("x", 2000)
	require.NoError(t, l.Write("overseer", "route", long, "builder", nil))

	entries, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Detail, 500)
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Write("overseer", "route", "one", "builder", nil))
	require.NoError(t, l.Write("overseer", "route", "two", "builder", nil))
	require.NoError(t, l.Verify())

	// Rewrite the first entry's detail without recomputing digests.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	e.Detail = "doctored"
	doctored, err := json.Marshal(e)
	require.NoError(t, err)
	lines[0] = string(doctored)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	err = l.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestChainContinuesAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l1.Write("overseer", "route", "one", "builder", nil))

	l2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l2.Write("overseer", "route", "two", "builder", nil))

	require.NoError(t, l2.Verify())
}
