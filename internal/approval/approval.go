// Package approval is the human sign-off gate for tasks that touch shell
// execution. Matching is the same case-insensitive substring check the
// router uses, against a fixed sensitive-keyword table.
package approval

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/sayvdo/overseer/internal/audit"
)

var sensitiveKeywords = []string{"shell", "run command", "execute", "bash", "terminal"}

// Requires reports whether the task text needs human approval before
// dispatch.
func Requires(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Prompter performs the out-of-band yes/no confirmation.
type Prompter interface {
	Confirm(summary string) (bool, error)
}

// TerminalPrompter asks on the controlling terminal.
type TerminalPrompter struct{}

func (TerminalPrompter) Confirm(summary string) (bool, error) {
	fmt.Printf("\nAPPROVAL REQUIRED: this task involves shell execution:\n   %s\n", summary)
	prompt := promptui.Prompt{
		Label:     "Approve",
		IsConfirm: true,
		Default:   "n",
	}
	_, err := prompt.Run()
	if err == promptui.ErrAbort {
		return false, nil
	}
	if err != nil {
		// Treat any prompt failure (EOF, no tty) as a denial.
		return false, nil
	}
	return true, nil
}

// Gate ties the prompt to the audit log. The decision is recorded before
// Request returns.
type Gate struct {
	prompter Prompter
	auditLog *audit.Log
}

func NewGate(p Prompter, a *audit.Log) *Gate {
	return &Gate{prompter: p, auditLog: a}
}

// Request asks for confirmation and audits the outcome as approved/denied.
func (g *Gate) Request(text string) bool {
	summary := text
	if len(summary) > 120 {
		summary = summary[:120]
	}

	approved, err := g.prompter.Confirm(summary)
	if err != nil {
		approved = false
	}

	result := "denied"
	if approved {
		result = "approved"
	}
	if g.auditLog != nil {
		_ = g.auditLog.Write("overseer", "approval_request", text, result, nil)
	}
	return approved
}
