// Package audit is the append-only record of every routing decision, approval
// decision, execution outcome, and failure. Entries are one JSON object per
// line. Each entry carries a blake3 digest chained to the previous entry, so
// truncation or edits anywhere in the file are detectable.
package audit

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// maxDetailBytes truncates long prompts before they land in the log.
const maxDetailBytes = 500

type Entry struct {
	ID     string `json:"id"`
	TS     string `json:"ts"`
	Agent  string `json:"agent"`
	Action string `json:"action"`
	Detail string `json:"detail"`
	Result string `json:"result"`
	TaskID *int64 `json:"task_id,omitempty"`
	Digest string `json:"digest"`
}

// Log appends entries to a single file. Safe for concurrent use within one
// process; concurrent processes rely on O_APPEND line writes staying intact.
type Log struct {
	mu         sync.Mutex
	path       string
	lastDigest string
}

// Open prepares an audit log at path, seeding the digest chain from the last
// existing entry if the file is already present.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	l := &Log{path: path}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var last string
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			last = scanner.Text()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if last != "" {
		var e Entry
		if err := json.Unmarshal([]byte(last), &e); err == nil {
			l.lastDigest = e.Digest
		}
	}
	return l, nil
}

// Write appends a structured audit entry. taskID may be nil for entries not
// tied to a task (denials, routing of rejected input, bulk operations).
func (l *Log) Write(agent, action, detail, result string, taskID *int64) error {
	if len(detail) > maxDetailBytes {
		detail = detail[:maxDetailBytes]
	}

	e := Entry{
		ID:     uuid.NewString(),
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Agent:  agent,
		Action: action,
		Detail: detail,
		Result: result,
		TaskID: taskID,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.Digest = chainDigest(l.lastDigest, &e)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	l.lastDigest = e.Digest
	return nil
}

// Tail returns the last n entries, oldest first. Lines that fail to parse
// are skipped rather than aborting the read.
func (l *Log) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Verify recomputes the digest chain over the whole file and returns an
// error naming the first entry whose digest does not match.
func (l *Log) Verify() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	prev := ""
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("audit log line %d: malformed entry", lineNo)
		}
		want := chainDigest(prev, &e)
		if e.Digest != want {
			return fmt.Errorf("audit log line %d: digest mismatch (entry %s)", lineNo, e.ID)
		}
		prev = e.Digest
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

// chainDigest hashes the previous digest plus the entry content (digest
// field excluded) to extend the chain.
func chainDigest(prev string, e *Entry) string {
	bare := *e
	bare.Digest = ""
	body, _ := json.Marshal(bare)

	h := blake3.New()
	_, _ = h.Write([]byte(prev))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
