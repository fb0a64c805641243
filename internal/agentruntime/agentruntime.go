// Package agentruntime implements the agent capability surface and
// invocation wrapper from spec.md §4.7: a polymorphic
// {get_instructions, list_tools, invoke} surface, wrapped so every call
// produces start/end events, enforces a per-agent timeout, and yields an
// AgentExecutionRecord. Errors within one agent are captured into the
// record, never raised — a hard failure becomes a workflow-level concern
// handled by internal/orchestration.
package agentruntime

import (
	"context"
	"time"

	"github.com/intelligencedev/queryfrontd/internal/costmodel"
	"github.com/intelligencedev/queryfrontd/internal/llm"
	"github.com/intelligencedev/queryfrontd/internal/memory"
)

// Context is the shared context passed into Invoke: the current request's
// query and embedding, the user's contextual memory, and the outputs of any
// tasks that already ran earlier in the owning workflow (populated by
// Sequential orchestration under each task's outputs_key).
type Context struct {
	Query     string
	UserID    string
	Embedding []float32
	Memory    memory.Context
	Prior     map[string]AgentOutput
}

// Agent is the capability surface every agent implementation satisfies.
// Implementations own their own LLM/tool wiring; the runtime only manages
// the invocation envelope (timeout, events, record).
type Agent interface {
	ID() string
	GetInstructions() string
	ListTools() []llm.ToolSchema
	Invoke(ctx context.Context, invocationCtx Context) (AgentOutput, error)
}

// Status is the terminal state of one agent invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// AgentExecutionRecord is what Invoke produces for every call, success or
// not — the orchestration layer and metrics collector consume this.
type AgentExecutionRecord struct {
	AgentID    string
	Status     Status
	Output     AgentOutput
	Err        error
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMS int64
	CostUSD    float64
}

// EventRecorder is the narrow slice of the metrics collector's API the
// runtime needs. Declaring it here (rather than importing internal/metrics)
// keeps the dependency pointed the way spec.md §9 calls for: agents and the
// runtime depend on an interface, not on the concrete collector.
type EventRecorder interface {
	StartEvent(eventType, name string, metadata map[string]any) string
	EndEvent(eventID string, status string, metadata map[string]any)
}

// Runtime wraps Agent.Invoke calls with the envelope spec.md §4.7 describes.
type Runtime struct {
	agentTimeout time.Duration
}

// New builds a Runtime enforcing agentTimeout per invocation (spec.md
// default 20s, see internal/config).
func New(agentTimeout time.Duration) *Runtime {
	if agentTimeout <= 0 {
		agentTimeout = 20 * time.Second
	}
	return &Runtime{agentTimeout: agentTimeout}
}

// Invoke runs agent under the timeout envelope, recording start/end events
// on recorder (which may be nil, e.g. in unit tests) and pricing the
// resulting tokens against model via internal/costmodel when the agent
// itself did not surface raw usage.
func (r *Runtime) Invoke(ctx context.Context, agent Agent, invocationCtx Context, model string, recorder EventRecorder) AgentExecutionRecord {
	var eventID string
	if recorder != nil {
		eventID = recorder.StartEvent("agent", agent.ID(), map[string]any{"query": invocationCtx.Query})
	}

	cctx, cancel := context.WithTimeout(ctx, r.agentTimeout)
	defer cancel()

	started := time.Now()
	type invokeResult struct {
		out AgentOutput
		err error
	}
	resCh := make(chan invokeResult, 1)
	go func() {
		out, err := agent.Invoke(cctx, invocationCtx)
		resCh <- invokeResult{out, err}
	}()

	rec := AgentExecutionRecord{AgentID: agent.ID(), StartedAt: started}

	select {
	case res := <-resCh:
		rec.EndedAt = time.Now()
		rec.DurationMS = rec.EndedAt.Sub(started).Milliseconds()
		if res.err != nil && cctx.Err() != nil {
			rec.Status = StatusTimeout
			rec.Err = cctx.Err()
			if recorder != nil {
				recorder.EndEvent(eventID, string(StatusTimeout), nil)
			}
			return rec
		}
		if res.err != nil {
			rec.Status = StatusError
			rec.Err = res.err
			if recorder != nil {
				recorder.EndEvent(eventID, string(StatusError), map[string]any{"error": res.err.Error()})
			}
			return rec
		}
		rec.Status = StatusSuccess
		rec.Output = res.out
		rec.CostUSD = estimateCost(model, agent, invocationCtx, res.out)
		if recorder != nil {
			recorder.EndEvent(eventID, string(StatusSuccess), nil)
		}
		return rec
	case <-cctx.Done():
		rec.EndedAt = time.Now()
		rec.DurationMS = rec.EndedAt.Sub(started).Milliseconds()
		rec.Status = StatusTimeout
		rec.Err = cctx.Err()
		if recorder != nil {
			recorder.EndEvent(eventID, string(StatusTimeout), nil)
		}
		return rec
	}
}

// estimateCost prices an agent's turn. When the agent surfaced raw usage we
// trust it; otherwise tokens are counted via costmodel the same way the
// embedding and cache layers do.
func estimateCost(model string, agent Agent, invocationCtx Context, out AgentOutput) float64 {
	if out.RawTokenUsage != nil {
		return costmodel.LLMCost(model, out.RawTokenUsage.InputTokens, out.RawTokenUsage.OutputTokens)
	}
	inputTokens := costmodel.CountMessages(model, []costmodel.Message{
		{Role: "system", Content: agent.GetInstructions()},
		{Role: "user", Content: invocationCtx.Query},
	})
	outputTokens := costmodel.CountTokens(model, out.Text)
	return costmodel.LLMCost(model, inputTokens, outputTokens)
}
