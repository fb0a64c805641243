package workflow

import (
	"fmt"
	"sync"

	"github.com/intelligencedev/queryfrontd/internal/apperr"
)

// DefaultWorkflowName is the name every registry must carry (spec.md §4.9).
const DefaultWorkflowName = "Default"

// Registry is the static name → Workflow mapping. Registrations normally
// happen once at startup; the map is effectively read-only afterward, but
// the mutex keeps concurrent registration safe for tests and hot-reload
// tooling alike.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry returns an empty registry. Callers must Register a workflow
// named Default before using it in production; NewDefaultRegistry builds
// one with a usable empty Default already in place.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*Workflow)}
}

// NewDefaultRegistry returns a registry pre-seeded with an empty Default
// workflow (no tasks, no synthesis, zero baseline cost) — the fallback
// spec.md §8 exercises when nothing else matches.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Workflow{Name: DefaultWorkflowName, Pattern: PatternSequential})
	return r
}

// Register adds or replaces a workflow.
func (r *Registry) Register(w *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.Name] = w
}

// Get looks up a workflow by name. An unknown name returns an
// apperr.CodeUnknownWorkflow error; the dispatcher demotes this to a
// warning and falls back to Default per spec.md §7.
func (r *Registry) Get(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[name]
	if !ok {
		return nil, apperr.New(apperr.CodeUnknownWorkflow, fmt.Sprintf("unknown workflow %q", name))
	}
	return w, nil
}

// IsRegistered reports whether name names a known workflow. Satisfies
// internal/routercache's IsRegisteredFunc.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflows[name]
	return ok
}

// MatchPattern tries every non-Default workflow's routing regexes against
// lowercasedQuery, in registration-independent (map) order, and returns the
// first match. Satisfies internal/routercache's PatternMatchFunc.
func (r *Registry) MatchPattern(lowercasedQuery string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, w := range r.workflows {
		if name == DefaultWorkflowName {
			continue
		}
		if w.Matches(lowercasedQuery) {
			return name, true
		}
	}
	return "", false
}
