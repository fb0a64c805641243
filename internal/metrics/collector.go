// Package metrics implements the request-scoped metrics collector from
// spec.md §4.11: a deterministic event timeline, per-agent execution
// records, cache-layer outcomes, and cost/performance aggregation, all
// assembled into the EnhancedResponse object returned to callers.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

type eventState string

const (
	stateActive eventState = "active"
	stateClosed eventState = "closed"
)

type event struct {
	id        string
	eventType string
	name      string
	startMS   int64
	endMS     int64
	status    string
	metadata  map[string]any
	state     eventState
	seq       int
}

type cacheCheckRecord struct {
	checked      bool
	hit          bool
	similarity   float64
	queryTimeMS  float64
	costSavedUSD float64
	matchedQuery string
}

type toolRecord struct {
	agentID         string
	toolName        string
	cacheHit        bool
	durationMS      int64
	resultSizeBytes int
}

// Collector is the request-scoped metrics object. It is safe for concurrent
// use: sub-tasks (concurrent agent invocations, tool calls) record through
// it while the owning dispatcher task assembles the final summary.
type Collector struct {
	mu sync.Mutex

	queryID   string
	sessionID string
	createdAt time.Time
	targets   Targets

	nextEventSeq int
	events       []*event
	eventIndex   map[string]*event

	agentRecords []agentruntime.AgentExecutionRecord
	agentModels  map[string]string
	toolRecords  []toolRecord
	cacheLayers  map[string]cacheCheckRecord

	embeddingCostUSD float64
	errorCounters    map[string]int
}

// New builds a Collector for one request.
func New(queryID, sessionID string, targets Targets) *Collector {
	return &Collector{
		queryID:       queryID,
		sessionID:     sessionID,
		createdAt:     time.Now(),
		targets:       targets,
		eventIndex:    make(map[string]*event),
		agentModels:   make(map[string]string),
		cacheLayers:   make(map[string]cacheCheckRecord),
		errorCounters: make(map[string]int),
	}
}

// QueryID returns the request's query id.
func (c *Collector) QueryID() string { return c.queryID }

// StartEvent pushes a frame onto the timeline: created → active. Satisfies
// agentruntime.EventRecorder.
func (c *Collector) StartEvent(eventType, name string, metadata map[string]any) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextEventSeq++
	id := fmt.Sprintf("evt-%d", c.nextEventSeq)
	e := &event{
		id:        id,
		eventType: eventType,
		name:      name,
		startMS:   time.Since(c.createdAt).Milliseconds(),
		metadata:  metadata,
		state:     stateActive,
		seq:       c.nextEventSeq,
	}
	c.events = append(c.events, e)
	c.eventIndex[id] = e
	return id
}

// EndEvent closes a previously started event: active → closed. Closing an
// unknown or already-closed event is a no-op — spec.md §4.11 calls closing
// an unopened event an error, but this API has no caller-facing error
// channel, so callers that mis-pair start/end silently lose the close
// rather than crash a request.
func (c *Collector) EndEvent(eventID string, status string, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.eventIndex[eventID]
	if !ok || e.state == stateClosed {
		return
	}
	e.endMS = time.Since(c.createdAt).Milliseconds()
	e.status = status
	if metadata != nil {
		if e.metadata == nil {
			e.metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			e.metadata[k] = v
		}
	}
	e.state = stateClosed
}

// RecordAgentExecution files a completed agent invocation. model is the
// pricing model the agent ran against, carried separately since
// AgentExecutionRecord itself doesn't know about pricing.
func (c *Collector) RecordAgentExecution(rec agentruntime.AgentExecutionRecord, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentRecords = append(c.agentRecords, rec)
	c.agentModels[rec.AgentID] = model
}

// RecordCacheCheck files one cache layer's outcome for this request. Layer
// is one of "semantic", "router", "tool"; matchedQuery is empty when none.
func (c *Collector) RecordCacheCheck(layer string, hit bool, similarity, queryTimeMS, costSavedUSD float64, matchedQuery string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheLayers[layer] = cacheCheckRecord{
		checked:      true,
		hit:          hit,
		similarity:   similarity,
		queryTimeMS:  queryTimeMS,
		costSavedUSD: costSavedUSD,
		matchedQuery: matchedQuery,
	}
}

// RecordToolInvocation satisfies agentruntime.ToolRecorder.
func (c *Collector) RecordToolInvocation(agentID, toolName string, cacheHit bool, durationMS int64, resultSizeBytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolRecords = append(c.toolRecords, toolRecord{
		agentID:         agentID,
		toolName:        toolName,
		cacheHit:        cacheHit,
		durationMS:      durationMS,
		resultSizeBytes: resultSizeBytes,
	})
}

// SetEmbeddingCost records the single embedding call every request makes.
func (c *Collector) SetEmbeddingCost(usd float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingCostUSD = usd
}

// IncrementErrorCounter bumps the named error counter (spec.md §7: "repeated
// failures increment an error counter the metrics collector reports").
func (c *Collector) IncrementErrorCounter(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCounters[code]++
}

// GetSummary assembles the EnhancedResponse. Any event still active at this
// point is force-closed with status "unknown" per the §4.11 state machine.
// Ordering is deterministic: agents by start time (ties broken by agent
// id), cache layers in fixed {semantic, router, tool} order, timeline
// events by start_ms (ties broken by event id).
func (c *Collector) GetSummary(query, response string, workflow WorkflowInfo, baselineCostUSD float64) EnhancedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	for _, e := range c.events {
		if e.state != stateClosed {
			e.endMS = time.Since(c.createdAt).Milliseconds()
			e.status = "unknown"
			e.state = stateClosed
		}
	}

	agents := append([]agentruntime.AgentExecutionRecord(nil), c.agentRecords...)
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].StartedAt.Equal(agents[j].StartedAt) {
			return agents[i].AgentID < agents[j].AgentID
		}
		return agents[i].StartedAt.Before(agents[j].StartedAt)
	})

	toolsByAgent := make(map[string][]ToolInvocationSummary, len(c.agentModels))
	for _, tr := range c.toolRecords {
		toolsByAgent[tr.agentID] = append(toolsByAgent[tr.agentID], ToolInvocationSummary{
			ToolName:        tr.toolName,
			DurationMS:      tr.durationMS,
			CacheHit:        tr.cacheHit,
			ResultSizeBytes: tr.resultSizeBytes,
		})
	}

	var llmCost float64
	agentSummaries := make([]AgentExecutionSummary, 0, len(agents))
	agentsInvoked := make([]string, 0, len(agents))
	for _, rec := range agents {
		llmCost += rec.CostUSD
		agentsInvoked = append(agentsInvoked, rec.AgentID)

		summary := AgentExecutionSummary{
			AgentID:         rec.AgentID,
			StartedAt:       rec.StartedAt,
			EndedAt:         rec.EndedAt,
			Status:          string(rec.Status),
			Model:           c.agentModels[rec.AgentID],
			Tools:           toolsByAgent[rec.AgentID],
			CostUSD:         rec.CostUSD,
			ResponsePreview: preview(rec.Output.Text),
		}
		if rec.Output.RawTokenUsage != nil {
			summary.InputTokens = rec.Output.RawTokenUsage.InputTokens
			summary.OutputTokens = rec.Output.RawTokenUsage.OutputTokens
		}
		if rec.Err != nil {
			summary.ErrorMessage = rec.Err.Error()
		}
		agentSummaries = append(agentSummaries, summary)
	}
	workflow.AgentsInvoked = agentsInvoked

	cacheLayers := make([]CacheLayerMetrics, 0, 3)
	overallHit := false
	for _, name := range [...]string{"semantic", "router", "tool"} {
		layer := CacheLayerMetrics{Name: name}
		if rec, ok := c.cacheLayers[name]; ok {
			layer.Checked = rec.checked
			layer.Hit = rec.hit
			layer.Similarity = rec.similarity
			layer.QueryTimeMS = rec.queryTimeMS
			layer.CostSavedUSD = rec.costSavedUSD
			layer.MatchedQuery = rec.matchedQuery
			if rec.hit {
				overallHit = true
			}
		}
		cacheLayers = append(cacheLayers, layer)
	}

	totalCost := c.embeddingCostUSD + llmCost
	var savingsUSD, savingsPercent float64
	if baselineCostUSD > 0 {
		savingsUSD = math.Max(0, baselineCostUSD-totalCost)
		savingsPercent = math.Round(100 * savingsUSD / baselineCostUSD)
	}

	totalDurationMS := time.Since(c.createdAt).Milliseconds()

	events := append([]*event(nil), c.events...)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].startMS == events[j].startMS {
			return events[i].seq < events[j].seq
		}
		return events[i].startMS < events[j].startMS
	})
	timelineEvents := make([]TimelineEvent, 0, len(events))
	for _, e := range events {
		timelineEvents = append(timelineEvents, TimelineEvent{
			ID:         e.id,
			Type:       e.eventType,
			Name:       e.name,
			StartMS:    e.startMS,
			EndMS:      e.endMS,
			DurationMS: e.endMS - e.startMS,
			Status:     e.status,
			Metadata:   e.metadata,
		})
	}

	errCounters := make(map[string]int, len(c.errorCounters))
	for k, v := range c.errorCounters {
		errCounters[k] = v
	}

	return EnhancedResponse{
		Query:           query,
		Response:        response,
		QueryID:         c.queryID,
		Timestamp:       now,
		Workflow:        workflow,
		Agents:          agentSummaries,
		CacheLayers:     cacheLayers,
		OverallCacheHit: overallHit,
		Cost: CostBreakdown{
			EmbeddingCostUSD:   c.embeddingCostUSD,
			LLMCostUSD:         llmCost,
			TotalCostUSD:       totalCost,
			BaselineCostUSD:    baselineCostUSD,
			CostSavingsUSD:     savingsUSD,
			CostSavingsPercent: savingsPercent,
		},
		Performance: PerformanceMetrics{
			TotalTimeMS:        totalDurationMS,
			MeetsLatencyTarget: c.targets.LatencyMS <= 0 || float64(totalDurationMS) <= c.targets.LatencyMS,
			MeetsCostTarget:    c.targets.CostUSD <= 0 || totalCost <= c.targets.CostUSD,
		},
		Session: SessionMetrics{SessionID: c.sessionID, ErrorCounters: errCounters},
		Timeline: Timeline{
			TotalDurationMS: totalDurationMS,
			Events:          timelineEvents,
		},
	}
}

func preview(text string) string {
	const maxLen = 200
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}
