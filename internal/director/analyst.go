package director

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sayvdo/overseer/internal/queue"
)

// Analyst handles data analysis and reporting. Two sub-modes:
//
// scan mode: the task asks for a security scan. A ticker is extracted from
// the free text and the external scanner is invoked, positional ticker arg
// preferred, watchlist flag otherwise. Only Score: lines make the summary.
//
// generic mode: an optional whitelisted shell command's output plus the
// prompt go to the generation capability; shell failure is folded into the
// prompt as text rather than raised.
type Analyst struct {
	gen   Generator
	shell ShellRunner
	scan  ScanRunner
}

func NewAnalyst(gen Generator, shell ShellRunner, scan ScanRunner) *Analyst {
	return &Analyst{gen: gen, shell: shell, scan: scan}
}

func (a *Analyst) Name() string { return "analyst" }

func (a *Analyst) RunTask(ctx context.Context, task *queue.Task) (string, error) {
	prompt := task.PayloadString("prompt")

	if isScanTask(task.TaskType, prompt) {
		return a.runScan(ctx, prompt)
	}
	return a.runGeneric(ctx, task, prompt)
}

var scanKeywords = []string{"sec scan", "sec scanner", "scan ticker", "watchlist"}

func isScanTask(taskType, prompt string) bool {
	if taskType == "sec_scan" {
		return true
	}
	lower := strings.ToLower(prompt)
	for _, kw := range scanKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (a *Analyst) runScan(ctx context.Context, prompt string) (string, error) {
	ticker := ""
	if !strings.Contains(strings.ToLower(prompt), "watchlist") {
		ticker = ExtractTicker(prompt)
	}

	out, err := a.scan.Scan(ctx, ticker)
	if err != nil {
		return "", err
	}
	return scanSummary(out), nil
}

func (a *Analyst) runGeneric(ctx context.Context, task *queue.Task, prompt string) (string, error) {
	shellCmd := task.PayloadString("shell_cmd")
	if shellCmd == "" {
		full := fmt.Sprintf("Analysis task: %s\n\nProvide a clear, structured analysis.", prompt)
		return a.gen.Execute(ctx, full)
	}

	// Shell failures become input text, not errors. The generation step is
	// still expected to produce something useful from the failure message.
	var full string
	out, err := a.shell.Execute(ctx, shellCmd)
	if err != nil {
		full = fmt.Sprintf("Shell command failed: %v\n\nTask: %s", err, prompt)
	} else {
		full = fmt.Sprintf("Analyze this data and summarize:\n\n%s\n\nTask: %s", out, prompt)
	}
	return a.gen.Execute(ctx, full)
}

var (
	tickerPhrase = regexp.MustCompile(`(?i)\bticker\s+([A-Za-z]{1,5})\b`)
	capsToken    = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
)

// tickerStopwords are all-caps tokens that show up in prose and are never
// symbols worth scanning.
var tickerStopwords = map[string]struct{}{
	"A": {}, "I": {}, "AI": {}, "SEC": {}, "SCAN": {}, "THE": {},
	"AND": {}, "FOR": {}, "NOT": {}, "USD": {}, "CEO": {}, "ETF": {},
	"OK": {}, "API": {},
}

// ExtractTicker pulls a ticker symbol out of free text. An explicit
// "ticker SYMBOL" phrase wins; otherwise the first isolated 1-5 letter
// all-caps token not in the stopword set. Empty means no ticker found.
func ExtractTicker(text string) string {
	if m := tickerPhrase.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	for _, tok := range capsToken.FindAllString(text, -1) {
		if _, stop := tickerStopwords[tok]; !stop {
			return tok
		}
	}
	return ""
}

// scanSummary keeps only the Score: lines of scanner output. If the scanner
// printed none, the last 500 characters stand in as the summary.
func scanSummary(out string) string {
	var scored []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Score:") {
			scored = append(scored, strings.TrimSpace(line))
		}
	}
	if len(scored) > 0 {
		return strings.Join(scored, "\n")
	}

	trimmed := strings.TrimSpace(out)
	if len(trimmed) > 500 {
		trimmed = trimmed[len(trimmed)-500:]
	}
	return trimmed
}
