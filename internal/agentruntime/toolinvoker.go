package agentruntime

import (
	"context"
	"time"

	"github.com/intelligencedev/queryfrontd/internal/toolcache"
)

// ToolFunc performs the actual tool work when the tool cache misses.
type ToolFunc func(ctx context.Context, parameters map[string]any) ([]byte, error)

// ToolRecorder is the narrow metrics surface for tool calls (spec.md
// §4.11's record_tool_invocation). Separate from EventRecorder so a caller
// that doesn't care about tool-level metrics can pass nil. agentID
// attributes the call to the agent whose invocation it happened under, so
// the metrics collector can nest it into that agent's execution summary.
type ToolRecorder interface {
	RecordToolInvocation(agentID, toolName string, cacheHit bool, durationMS int64, resultSizeBytes int)
}

// ToolInvoker gives agents cache-then-compute semantics for free: a tool
// call first checks internal/toolcache by (tool_name, canonical(parameters))
// and only calls fn on a miss, per spec.md §4.5. Agents depend on this
// interface, not on the cache directly — the dependency-inversion break
// spec.md §9 calls for between agent, tool, and cache.
type ToolInvoker struct {
	agentID  string
	cache    *toolcache.Cache
	recorder ToolRecorder
}

// NewToolInvoker builds a ToolInvoker scoped to one agent invocation. cache
// may be nil, in which case every call is a pass-through to fn.
func NewToolInvoker(agentID string, cache *toolcache.Cache, recorder ToolRecorder) *ToolInvoker {
	return &ToolInvoker{agentID: agentID, cache: cache, recorder: recorder}
}

// Invoke returns the tool's result, a cacheHit flag, and any error from fn.
func (t *ToolInvoker) Invoke(ctx context.Context, toolName string, parameters map[string]any, fn ToolFunc) ([]byte, bool, error) {
	started := time.Now()

	if t.cache != nil {
		key, err := toolcache.Key(toolName, parameters)
		if err == nil {
			if val, ok, getErr := t.cache.Get(ctx, key); getErr == nil && ok {
				if t.recorder != nil {
					t.recorder.RecordToolInvocation(t.agentID, toolName, true, time.Since(started).Milliseconds(), len(val))
				}
				return val, true, nil
			}
		}
	}

	val, err := fn(ctx, parameters)
	if err != nil {
		if t.recorder != nil {
			t.recorder.RecordToolInvocation(t.agentID, toolName, false, time.Since(started).Milliseconds(), 0)
		}
		return nil, false, err
	}

	if t.cache != nil {
		if key, keyErr := toolcache.Key(toolName, parameters); keyErr == nil {
			_ = t.cache.Set(ctx, key, val, t.cache.TTLForTool(toolName))
		}
	}

	if t.recorder != nil {
		t.recorder.RecordToolInvocation(t.agentID, toolName, false, time.Since(started).Milliseconds(), len(val))
	}
	return val, false, nil
}
