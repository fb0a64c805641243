package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

func TestStartEndEventRoundTrip(t *testing.T) {
	c := New("q1", "s1", Targets{LatencyMS: 2000, CostUSD: 0.02})
	id := c.StartEvent("embedding", "embed_query", nil)
	c.EndEvent(id, "success", nil)

	summary := c.GetSummary("q", "r", WorkflowInfo{Name: "Default"}, 0)
	require.Len(t, summary.Timeline.Events, 1)
	require.Equal(t, "success", summary.Timeline.Events[0].Status)
}

func TestEndEventOnUnknownIDIsNoop(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.EndEvent("evt-999", "success", nil)
	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.Empty(t, summary.Timeline.Events)
}

func TestUnclosedEventsAreClosedUnknownAtSummaryTime(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.StartEvent("agent", "Dangling", nil)

	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.Len(t, summary.Timeline.Events, 1)
	require.Equal(t, "unknown", summary.Timeline.Events[0].Status)
}

func TestCacheLayersAlwaysInFixedOrder(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.RecordCacheCheck("router", true, 0.95, 1.2, 0.01, "")
	c.RecordCacheCheck("semantic", false, 0.5, 2.0, 0, "")

	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.Len(t, summary.CacheLayers, 3)
	require.Equal(t, "semantic", summary.CacheLayers[0].Name)
	require.Equal(t, "router", summary.CacheLayers[1].Name)
	require.Equal(t, "tool", summary.CacheLayers[2].Name)
	require.False(t, summary.CacheLayers[2].Checked)
}

func TestOverallCacheHitReflectsAnyLayerHit(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.RecordCacheCheck("semantic", false, 0.5, 1, 0, "")
	c.RecordCacheCheck("router", true, 0.95, 1, 0.01, "price of AAPL")

	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.True(t, summary.OverallCacheHit)
}

func TestCostAggregationAndSavings(t *testing.T) {
	c := New("q1", "s1", Targets{CostUSD: 1.0, LatencyMS: 100000})
	c.SetEmbeddingCost(0.001)
	now := time.Now()
	c.RecordAgentExecution(agentruntime.AgentExecutionRecord{
		AgentID: "MarketDataAgent", Status: agentruntime.StatusSuccess,
		StartedAt: now, EndedAt: now.Add(10 * time.Millisecond), CostUSD: 0.02,
	}, "gpt-4o-mini")

	summary := c.GetSummary("q", "r", WorkflowInfo{Name: "QuickQuoteWorkflow"}, 0.0315)
	require.InDelta(t, 0.021, summary.Cost.TotalCostUSD, 1e-9)
	require.InDelta(t, 0.0105, summary.Cost.CostSavingsUSD, 1e-9)
	require.True(t, summary.Performance.MeetsCostTarget)
	require.Equal(t, []string{"MarketDataAgent"}, summary.Workflow.AgentsInvoked)
}

func TestCostSavingsNeverNegative(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.SetEmbeddingCost(1.0)
	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0.01)
	require.Equal(t, 0.0, summary.Cost.CostSavingsUSD)
}

func TestAgentsOrderedByStartTime(t *testing.T) {
	c := New("q1", "s1", Targets{})
	now := time.Now()
	c.RecordAgentExecution(agentruntime.AgentExecutionRecord{AgentID: "B", StartedAt: now.Add(5 * time.Millisecond), Status: agentruntime.StatusSuccess}, "m")
	c.RecordAgentExecution(agentruntime.AgentExecutionRecord{AgentID: "A", StartedAt: now, Status: agentruntime.StatusSuccess}, "m")

	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.Equal(t, "A", summary.Agents[0].AgentID)
	require.Equal(t, "B", summary.Agents[1].AgentID)
}

func TestToolInvocationsNestUnderOwningAgent(t *testing.T) {
	c := New("q1", "s1", Targets{})
	c.RecordAgentExecution(agentruntime.AgentExecutionRecord{AgentID: "MarketDataAgent", Status: agentruntime.StatusSuccess, StartedAt: time.Now()}, "gpt-4o-mini")
	c.RecordToolInvocation("MarketDataAgent", "get_quote", true, 5, 128)

	summary := c.GetSummary("q", "r", WorkflowInfo{}, 0)
	require.Len(t, summary.Agents[0].Tools, 1)
	require.Equal(t, "get_quote", summary.Agents[0].Tools[0].ToolName)
}
