package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Scanner invokes the external scan executable with either a ticker symbol
// as a positional argument or the --watchlist flag.
type Scanner struct {
	bin     string
	workDir string
	timeout time.Duration
}

func NewScanner(bin, workDir string, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Scanner{bin: bin, workDir: workDir, timeout: timeout}
}

// Scan runs the scanner and returns its raw stdout. ticker == "" requests a
// watchlist scan. Non-zero exit and timeout are both errors.
func (s *Scanner) Scan(ctx context.Context, ticker string) (string, error) {
	args := []string{"--watchlist"}
	if ticker != "" {
		args = []string{ticker}
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.bin, args...)
	cmd.Dir = s.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("scan timed out after %s", s.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("scan failed: %s", msg)
	}
	return stdout.String(), nil
}
