// Package director defines the polymorphic task handlers. A director turns
// one task payload into one textual result; behavior differences between the
// variants are payload interpretation only.
package director

import (
	"context"

	"github.com/sayvdo/overseer/internal/queue"
)

// Generator is the generation capability directors delegate prompts to.
type Generator interface {
	Execute(ctx context.Context, prompt string) (string, error)
}

// ShellRunner executes allow-listed commands.
type ShellRunner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ScanRunner invokes the external scanner. An empty ticker requests a
// watchlist scan.
type ScanRunner interface {
	Scan(ctx context.Context, ticker string) (string, error)
}

// Director is the capability the dispatch loop executes.
type Director interface {
	Name() string
	RunTask(ctx context.Context, task *queue.Task) (string, error)
}

// Registry maps director names to implementations, resolved once at startup.
type Registry struct {
	byName map[string]Director
	order  []string
}

func NewRegistry(directors ...Director) *Registry {
	r := &Registry{byName: make(map[string]Director, len(directors))}
	for _, d := range directors {
		if _, dup := r.byName[d.Name()]; dup {
			continue
		}
		r.byName[d.Name()] = d
		r.order = append(r.order, d.Name())
	}
	return r
}

func (r *Registry) Get(name string) (Director, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns registered director names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
