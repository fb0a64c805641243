package orchestration

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

// AgentResolver looks up an agent by id for the Handoff pattern to route
// to. Returning ok=false ends the handoff chain early (treated the same as
// a done directive).
type AgentResolver func(agentID string) (agentruntime.Agent, bool)

// HandoffResult is what Handoff returns.
type HandoffResult struct {
	Records       []agentruntime.AgentExecutionRecord
	HopCapReached bool
	Failures      *multierror.Error
}

// LastSuccessfulOutput mirrors Result.LastSuccessfulOutput for handoff runs.
func (r HandoffResult) LastSuccessfulOutput() (agentruntime.AgentOutput, bool) {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if r.Records[i].Status == agentruntime.StatusSuccess {
			return r.Records[i].Output, true
		}
	}
	return agentruntime.AgentOutput{}, false
}

// Handoff starts from entry and loops: each agent's output must carry a
// Handoff directive naming the next agent or declaring itself done. Cycles
// are detected purely by hop count (spec.md §4.8) — revisiting an agent is
// allowed, so no visited-set is kept. maxHops defaults to 6.
func Handoff(ctx context.Context, entry agentruntime.Agent, entryModel string, resolve AgentResolver, base agentruntime.Context, runtime *agentruntime.Runtime, maxHops int, recorder agentruntime.EventRecorder) HandoffResult {
	if maxHops <= 0 {
		maxHops = 6
	}

	current := entry
	model := entryModel
	invCtx := base
	if invCtx.Prior == nil {
		invCtx.Prior = map[string]agentruntime.AgentOutput{}
	}

	records := make([]agentruntime.AgentExecutionRecord, 0, maxHops)
	for hop := 0; hop < maxHops; hop++ {
		rec := runtime.Invoke(ctx, current, invCtx, model, recorder)
		records = append(records, rec)

		if rec.Status != agentruntime.StatusSuccess {
			return HandoffResult{Records: records, Failures: collectFailures(records)}
		}

		h := rec.Output.Handoff
		if h == nil || h.Kind == agentruntime.HandoffDone {
			return HandoffResult{Records: records, Failures: collectFailures(records)}
		}

		next, ok := resolve(h.NextAgent)
		if !ok {
			return HandoffResult{Records: records, Failures: collectFailures(records)}
		}
		invCtx.Prior[rec.AgentID] = rec.Output
		current = next
	}

	if recorder != nil {
		id := recorder.StartEvent("orchestration", "handoff:hop_cap_reached", map[string]any{"max_hops": maxHops})
		recorder.EndEvent(id, "warning", nil)
	}
	return HandoffResult{Records: records, HopCapReached: true, Failures: collectFailures(records)}
}
