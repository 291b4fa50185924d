package director

import (
	"context"
	"strings"

	"github.com/sayvdo/overseer/internal/queue"
)

// Builder handles coding and build tasks: optional context is prepended to
// the prompt and the whole thing goes to the generation capability.
type Builder struct {
	gen Generator
}

func NewBuilder(gen Generator) *Builder {
	return &Builder{gen: gen}
}

func (b *Builder) Name() string { return "builder" }

func (b *Builder) RunTask(ctx context.Context, task *queue.Task) (string, error) {
	prompt := task.PayloadString("prompt")
	taskContext := task.PayloadString("context")

	full := prompt
	if taskContext != "" {
		full = strings.TrimSpace(taskContext + "\n\n" + prompt)
	}
	return b.gen.Execute(ctx, full)
}
