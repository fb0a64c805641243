package metrics

import "time"

// WorkflowInfo describes the workflow chosen for a request.
type WorkflowInfo struct {
	Name            string   `json:"name"`
	Pattern         string   `json:"pattern"`
	RoutingTimeMS   float64  `json:"routing_time_ms"`
	AgentsInvoked   []string `json:"agents_invoked"`
	AgentsAvailable []string `json:"agents_available"`
}

// ToolInvocationSummary is one tool call nested under an agent's record.
type ToolInvocationSummary struct {
	ToolName        string `json:"tool_name"`
	DurationMS      int64  `json:"duration_ms"`
	CacheHit        bool   `json:"cache_hit"`
	ResultSizeBytes int    `json:"result_size_bytes"`
}

// AgentExecutionSummary is the serialized form of an
// agentruntime.AgentExecutionRecord, enriched with the tool calls that
// happened during its invocation.
type AgentExecutionSummary struct {
	AgentID         string                  `json:"agent_id"`
	StartedAt       time.Time               `json:"started_at"`
	EndedAt         time.Time               `json:"ended_at"`
	Status          string                  `json:"status"`
	InputTokens     int                     `json:"input_tokens"`
	OutputTokens    int                     `json:"output_tokens"`
	Model           string                  `json:"model"`
	Tools           []ToolInvocationSummary `json:"tools"`
	CostUSD         float64                 `json:"cost_usd"`
	ResponsePreview string                  `json:"response_preview"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
}

// CacheLayerMetrics is one row of the fixed {semantic, router, tool} report.
type CacheLayerMetrics struct {
	Name         string  `json:"name"`
	Checked      bool    `json:"checked"`
	Hit          bool    `json:"hit"`
	Similarity   float64 `json:"similarity"`
	QueryTimeMS  float64 `json:"query_time_ms"`
	CostSavedUSD float64 `json:"cost_saved_usd"`
	MatchedQuery string  `json:"matched_query,omitempty"`
}

// CostBreakdown is the per-request cost accounting.
type CostBreakdown struct {
	EmbeddingCostUSD   float64 `json:"embedding_cost_usd"`
	LLMCostUSD         float64 `json:"llm_cost_usd"`
	TotalCostUSD       float64 `json:"total_cost_usd"`
	BaselineCostUSD    float64 `json:"baseline_cost_usd"`
	CostSavingsUSD     float64 `json:"cost_savings_usd"`
	CostSavingsPercent float64 `json:"cost_savings_percent"`
}

// PerformanceMetrics carries the pass/fail verdict against configured
// targets.
type PerformanceMetrics struct {
	TotalTimeMS        int64 `json:"total_time_ms"`
	MeetsLatencyTarget bool  `json:"meets_latency_target"`
	MeetsCostTarget    bool  `json:"meets_cost_target"`
}

// SessionMetrics identifies the session and surfaces error counters.
type SessionMetrics struct {
	SessionID     string         `json:"session_id"`
	ErrorCounters map[string]int `json:"error_counters"`
}

// TimelineEvent is the serialized form of one collector event.
type TimelineEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	StartMS    int64          `json:"start_ms"`
	EndMS      int64          `json:"end_ms"`
	DurationMS int64          `json:"duration_ms"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Timeline is the request's full event list plus its overall span.
type Timeline struct {
	TotalDurationMS int64           `json:"total_duration_ms"`
	Events          []TimelineEvent `json:"events"`
}

// EnhancedResponse is the object described in spec.md §3 and returned by
// Collector.GetSummary.
type EnhancedResponse struct {
	Query           string                  `json:"query"`
	Response        string                  `json:"response"`
	QueryID         string                  `json:"query_id"`
	Timestamp       time.Time               `json:"timestamp"`
	Workflow        WorkflowInfo            `json:"workflow"`
	Agents          []AgentExecutionSummary `json:"agents"`
	CacheLayers     []CacheLayerMetrics     `json:"cache_layers"`
	OverallCacheHit bool                    `json:"overall_cache_hit"`
	Cost            CostBreakdown           `json:"cost"`
	Performance     PerformanceMetrics      `json:"performance"`
	Session         SessionMetrics          `json:"session"`
	Timeline        Timeline                `json:"timeline"`
}

// Targets holds the configurable latency/cost thresholds from spec.md §6.
type Targets struct {
	LatencyMS float64
	CostUSD   float64
}
