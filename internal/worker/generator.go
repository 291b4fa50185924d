// Package worker wraps the external processes directors delegate to: the
// generation CLI, the restricted shell runner, and the scan executable.
// Every invocation carries its own timeout; a worker process must never
// outlive its bound.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Generator runs the generation CLI as `bin -p <prompt>`.
type Generator struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewGenerator(bin string, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Generator{
		bin:     bin,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute feeds the prompt to the generation CLI and returns its trimmed
// stdout. Non-zero exit surfaces stderr; hitting the deadline surfaces a
// timeout error.
func (g *Generator) Execute(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, g.bin, "-p", prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	g.logger.Debug("generator invocation", "elapsed_ms", time.Since(start).Milliseconds(), "error", err)

	if cctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("generator timed out after %s", g.timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("generator error: %s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
