package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
)

// allowedCommands is the fixed allow-list of base executable names. The
// runner fails closed: anything else is rejected before exec.
var allowedCommands = map[string]struct{}{
	"git":         {},
	"python3":     {},
	"pip":         {},
	"pip3":        {},
	"sec-scanner": {},
	"pytest":      {},
	"ls":          {},
	"cat":         {},
	"echo":        {},
	"mkdir":       {},
	"cp":          {},
	"mv":          {},
}

// Shell executes allow-listed commands without a shell, confined to a
// sandbox working directory.
type Shell struct {
	sandboxDir string
	timeout    time.Duration
}

func NewShell(sandboxDir string, timeout time.Duration) *Shell {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Shell{sandboxDir: sandboxDir, timeout: timeout}
}

// Execute splits the command shell-style (no interpolation happens; the
// split argv is passed straight to exec), checks the allow-list against the
// base name of argv[0], and runs it inside the sandbox directory.
func (s *Shell) Execute(ctx context.Context, command string) (string, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("invalid command syntax: %v", err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty command")
	}

	// Full paths like /usr/bin/git resolve to git for the allow-list check.
	base := filepath.Base(parts[0])
	if _, ok := allowedCommands[base]; !ok {
		return "", fmt.Errorf("command %q is not allowed. Allowed: %s", base, allowedList())
	}

	if err := os.MkdirAll(s.sandboxDir, 0o755); err != nil {
		return "", fmt.Errorf("create sandbox directory: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, parts[0], parts[1:]...)
	cmd.Dir = s.sandboxDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s", s.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("command failed: %s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func allowedList() string {
	names := make([]string, 0, len(allowedCommands))
	for name := range allowedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
