// Package workflow implements the static workflow registry from spec.md
// §4.9: a name → Workflow mapping, always including Default, where each
// workflow names its orchestration pattern, its task list, an optional
// synthesis step, a baseline cost for cache-savings accounting, and the
// routing regexes the router cache's pattern-match stage tries before
// falling back to Default.
package workflow

import (
	"regexp"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
	"github.com/intelligencedev/queryfrontd/internal/orchestration"
)

// Pattern is the orchestration discipline a workflow declares.
type Pattern string

const (
	PatternSequential Pattern = "sequential"
	PatternConcurrent Pattern = "concurrent"
	PatternHandoff    Pattern = "handoff"
)

// SynthesisSpec is the distinguished final step whose input is the
// aggregated task outputs. When a workflow declares none, the last
// successful task's text becomes the response (spec.md §4.8).
type SynthesisSpec struct {
	Agent agentruntime.Agent
	Model string
}

// Workflow is one named, registered plan.
type Workflow struct {
	Name            string
	Pattern         Pattern
	Tasks           []orchestration.AgentTaskSpec
	EntryAgentID    string // Handoff only: which Tasks entry to start from
	Synthesis       *SynthesisSpec
	BaselineCostUSD float64
	RoutingPatterns []*regexp.Regexp
}

// Matches reports whether the (already-lowercased) query matches any of the
// workflow's routing regexes.
func (w *Workflow) Matches(lowercasedQuery string) bool {
	for _, re := range w.RoutingPatterns {
		if re.MatchString(lowercasedQuery) {
			return true
		}
	}
	return false
}

// AgentByID looks up one of the workflow's tasks by agent id, used by
// Handoff orchestration to resolve a next_agent directive.
func (w *Workflow) AgentByID(id string) (orchestration.AgentTaskSpec, bool) {
	for _, t := range w.Tasks {
		if t.AgentID == id {
			return t, true
		}
	}
	return orchestration.AgentTaskSpec{}, false
}

// CompilePatterns compiles case-insensitive routing regexes. A malformed
// pattern panics at registry construction time (startup), never at request
// time.
func CompilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}
