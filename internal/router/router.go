// Package router maps a free-text task description to exactly one director
// by keyword scoring. Pure and deterministic; no I/O.
package router

import "strings"

// rule pairs a director with its trigger keywords. Declaration order is the
// tie-break priority: the first director with the top score wins.
type rule struct {
	director string
	keywords []string
}

var rules = []rule{
	{"builder", []string{"build", "code", "create", "write", "fix", "implement", "develop"}},
	{"researcher", []string{"research", "find", "search", "look up", "what is", "who is", "explain", "summarize"}},
	{"analyst", []string{"analyze", "analyse", "scan", "report", "compare", "review data", "stats", "metrics",
		"sec scan", "sec scanner", "ai washing", "watchlist scan", "scan ticker"}},
}

// DefaultDirector receives tasks that match no keyword set.
const DefaultDirector = "researcher"

// Directors returns the known director names in priority order.
func Directors() []string {
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.director)
	}
	return names
}

// Route selects the director for a task description. Each keyword present in
// the lowercased text contributes exactly one point regardless of how often
// it repeats. Zero total score falls back to DefaultDirector.
func Route(text string) string {
	lower := strings.ToLower(text)

	best := DefaultDirector
	bestScore := 0
	for _, r := range rules {
		score := 0
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best = r.director
			bestScore = score
		}
	}
	return best
}
