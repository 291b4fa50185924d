package director

import (
	"context"
	"fmt"

	"github.com/sayvdo/overseer/internal/queue"
)

// Researcher handles research and information gathering. The prompt is
// wrapped in a fixed research framing before delegation.
type Researcher struct {
	gen Generator
}

func NewResearcher(gen Generator) *Researcher {
	return &Researcher{gen: gen}
}

func (r *Researcher) Name() string { return "researcher" }

func (r *Researcher) RunTask(ctx context.Context, task *queue.Task) (string, error) {
	prompt := task.PayloadString("prompt")
	full := fmt.Sprintf("Research task: %s\n\nProvide a clear, factual summary with specific details. Be concise.", prompt)
	return r.gen.Execute(ctx, full)
}
