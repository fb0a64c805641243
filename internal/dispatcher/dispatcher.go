// Package dispatcher implements the end-to-end request flow from spec.md
// §4.10: cache short-circuit, route, execute a workflow under its declared
// orchestration pattern, synthesize, store back, and return an
// EnhancedResponse alongside its metrics.
package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
	"github.com/intelligencedev/queryfrontd/internal/apperr"
	"github.com/intelligencedev/queryfrontd/internal/costmodel"
	"github.com/intelligencedev/queryfrontd/internal/llm"
	"github.com/intelligencedev/queryfrontd/internal/memory"
	"github.com/intelligencedev/queryfrontd/internal/metrics"
	"github.com/intelligencedev/queryfrontd/internal/orchestration"
	"github.com/intelligencedev/queryfrontd/internal/routercache"
	"github.com/intelligencedev/queryfrontd/internal/semanticcache"
	"github.com/intelligencedev/queryfrontd/internal/workflow"
)

// Options configures a Dispatcher. All durations map directly to spec.md §6
// configuration keys.
type Options struct {
	Provider        llm.Provider
	EmbeddingModel  string
	SemanticCache   *semanticcache.Cache
	RouterCache     *routercache.RouterCache
	Memory          *memory.Service
	Registry        *workflow.Registry
	Runtime         *agentruntime.Runtime
	RequestDeadline time.Duration
	ConcurrentCap   time.Duration
	HandoffMaxHops  int
	ConcurrencyCap  int
	Targets         metrics.Targets
}

// Dispatcher is the request-scoped orchestrator described in spec.md §4.10.
// It holds no per-request state itself — every Handle call builds its own
// metrics collector and context.
type Dispatcher struct {
	provider        llm.Provider
	embeddingModel  string
	semanticCache   *semanticcache.Cache
	routerCache     *routercache.RouterCache
	memory          *memory.Service
	registry        *workflow.Registry
	runtime         *agentruntime.Runtime
	requestDeadline time.Duration
	concurrentCap   time.Duration
	handoffMaxHops  int
	targets         metrics.Targets

	// pool bounds total in-flight Handle calls to dispatcher.concurrency_cap
	// (spec.md §6). Submissions beyond capacity return ants.ErrPoolOverload,
	// which Handle maps to apperr.CodeOverloaded. nil means unbounded.
	pool *ants.Pool
}

// New builds a Dispatcher. It does not own the lifecycle of any of its
// dependencies except its own worker pool — internal/core calls Close on
// shutdown alongside closing the rest of CoreServices.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		provider:        opts.Provider,
		embeddingModel:  opts.EmbeddingModel,
		semanticCache:   opts.SemanticCache,
		routerCache:     opts.RouterCache,
		memory:          opts.Memory,
		registry:        opts.Registry,
		runtime:         opts.Runtime,
		requestDeadline: opts.RequestDeadline,
		concurrentCap:   opts.ConcurrentCap,
		handoffMaxHops:  opts.HandoffMaxHops,
		targets:         opts.Targets,
	}
	if opts.ConcurrencyCap > 0 {
		if pool, err := ants.NewPool(opts.ConcurrencyCap, ants.WithNonblocking(true)); err == nil {
			d.pool = pool
		}
	}
	return d
}

// Close releases the dispatcher's worker pool. Safe to call on a Dispatcher
// built with no concurrency cap.
func (d *Dispatcher) Close() {
	if d.pool != nil {
		d.pool.Release()
	}
}

// Handle runs the full flow from spec.md §4.10 and returns either an
// EnhancedResponse or a structured *apperr.Error. When the dispatcher was
// built with a concurrency cap, the request runs on the bounded pool and an
// exhausted pool yields apperr.CodeOverloaded with no side effects.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (metrics.EnhancedResponse, *apperr.Error) {
	if d.pool == nil {
		return d.handle(ctx, req)
	}

	type outcome struct {
		resp metrics.EnhancedResponse
		err  *apperr.Error
	}
	done := make(chan outcome, 1)
	submitErr := d.pool.Submit(func() {
		resp, err := d.handle(ctx, req)
		done <- outcome{resp, err}
	})
	if submitErr != nil {
		return metrics.EnhancedResponse{}, apperr.New(apperr.CodeOverloaded, "dispatcher pending-request cap exceeded")
	}
	out := <-done
	return out.resp, out.err
}

// handle is Handle's body, run either inline or on the worker pool.
func (d *Dispatcher) handle(ctx context.Context, req Request) (metrics.EnhancedResponse, *apperr.Error) {
	if strings.TrimSpace(req.Query) == "" || len(req.Query) > maxQueryBytes {
		return metrics.EnhancedResponse{}, apperr.New(apperr.CodeInvalidRequest, "query must be non-empty and at most 8KiB")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return metrics.EnhancedResponse{}, apperr.New(apperr.CodeInvalidRequest, "user_id is required")
	}

	deadline := d.requestDeadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	queryID := uuid.New().String()
	now := time.Now()
	collector := metrics.New(queryID, sessionIDFor(req.UserID, now), d.targets)

	// 2. Embed the query. A failure here is ProviderUnavailable degraded,
	// not a hard failure: cache lookups skip, routing falls back to
	// pattern-then-Default (spec.md §7).
	embedding, embedErr := d.embed(ctx, req.Query, collector)

	// 3. Semantic cache lookup.
	if embedErr == nil {
		if resp, hit := d.tryCacheHit(ctx, req, embedding, queryID, collector); hit {
			return resp, nil
		}
	}

	// 4. Miss: load memory, seed the shared invocation context.
	memCtx, _ := d.memory.Load(ctx, req.UserID)
	invCtx := agentruntime.Context{
		Query:     req.Query,
		UserID:    req.UserID,
		Embedding: embedding,
		Memory:    memCtx,
	}

	// 5. Route.
	routeResult := d.route(ctx, req, embedding, embedErr, collector)

	// 6. Resolve the workflow, demoting UnknownWorkflow to a warning.
	wf, werr := d.registry.Get(routeResult.WorkflowName)
	if werr != nil {
		evt := collector.StartEvent("workflow", "unknown_workflow_fallback", map[string]any{"requested": routeResult.WorkflowName})
		collector.EndEvent(evt, "warning", nil)
		wf, werr = d.registry.Get(workflow.DefaultWorkflowName)
		if werr != nil {
			return metrics.EnhancedResponse{}, apperr.New(apperr.CodeUnknownWorkflow, "no Default workflow registered").WithQueryID(queryID)
		}
	}

	agentsAvailable := make([]string, 0, len(wf.Tasks))
	for _, t := range wf.Tasks {
		agentsAvailable = append(agentsAvailable, t.AgentID)
	}
	workflowInfo := metrics.WorkflowInfo{
		Name:            wf.Name,
		Pattern:         string(wf.Pattern),
		RoutingTimeMS:   routeResult.RoutingTimeMS,
		AgentsAvailable: agentsAvailable,
	}

	if len(wf.Tasks) == 0 && wf.Synthesis == nil {
		evt := collector.StartEvent("workflow", "empty_workflow", nil)
		collector.EndEvent(evt, "warning", nil)
		summary := collector.GetSummary(req.Query, req.Query, workflowInfo, wf.BaselineCostUSD)
		d.appendTurns(ctx, req.UserID, req.Query, req.Query)
		return summary, nil
	}

	// 6-7. Execute under the declared orchestration pattern, then synthesize.
	records, terminated, termErr := d.runWorkflow(ctx, wf, invCtx, collector)
	if terminated {
		summary := collector.GetSummary(req.Query, "", workflowInfo, wf.BaselineCostUSD)
		return metrics.EnhancedResponse{}, apperr.Wrap(apperr.CodeProviderUnavailable, "required agent task failed", termErr).
			WithQueryID(queryID).
			WithPartialMetrics(&summary)
	}

	responseText := d.synthesize(ctx, wf, records, invCtx, collector)

	// 8. Store back.
	if embedErr == nil {
		d.storeBack(ctx, req, responseText, embedding, wf, routeResult, collector)
	}

	// 9. Append conversation turns.
	d.appendTurns(ctx, req.UserID, req.Query, responseText)

	// 10. Finalize.
	summary := collector.GetSummary(req.Query, responseText, workflowInfo, wf.BaselineCostUSD)
	return summary, nil
}

func (d *Dispatcher) embed(ctx context.Context, query string, collector *metrics.Collector) ([]float32, error) {
	evt := collector.StartEvent("embedding", "embed_query", nil)
	vec, err := d.provider.Embed(ctx, d.embeddingModel, query)
	if err != nil {
		collector.EndEvent(evt, "error", map[string]any{"error": err.Error()})
		collector.IncrementErrorCounter(string(apperr.CodeProviderUnavailable))
		return nil, err
	}
	tokens := costmodel.CountTokens(d.embeddingModel, query)
	collector.SetEmbeddingCost(costmodel.EmbeddingCost(d.embeddingModel, tokens))
	collector.EndEvent(evt, "success", nil)
	return vec, nil
}

func (d *Dispatcher) tryCacheHit(ctx context.Context, req Request, embedding []float32, queryID string, collector *metrics.Collector) (metrics.EnhancedResponse, bool) {
	evt := collector.StartEvent("cache_lookup", "semantic", nil)
	lookup, err := d.semanticCache.Lookup(ctx, embedding, time.Now())
	if err != nil {
		collector.EndEvent(evt, "error", map[string]any{"error": err.Error()})
		collector.IncrementErrorCounter(string(apperr.CodeStoreUnavailable))
		collector.RecordCacheCheck("semantic", false, lookup.Similarity, lookup.QueryTimeMS, 0, "")
		warn := collector.StartEvent("warning", "store_unavailable", nil)
		collector.EndEvent(warn, "warning", nil)
		return metrics.EnhancedResponse{}, false
	}
	collector.RecordCacheCheck("semantic", lookup.Hit, lookup.Similarity, lookup.QueryTimeMS, lookup.CostSavedUSD, lookup.CachedQuery)
	if !lookup.Hit {
		collector.EndEvent(evt, "success", map[string]any{"hit": false})
		return metrics.EnhancedResponse{}, false
	}
	collector.EndEvent(evt, "success", map[string]any{"hit": true})

	tokensInResponse := costmodel.CountTokens(d.embeddingModel, lookup.Record.ResponseText)
	cacheKey := semanticcache.StableHash(semanticcache.Normalize(req.Query))
	_ = d.semanticCache.IncrementUsage(ctx, cacheKey, tokensInResponse)

	workflowInfo := metrics.WorkflowInfo{Name: lookup.Record.WorkflowName, Pattern: "", AgentsInvoked: []string{}}
	summary := collector.GetSummary(req.Query, lookup.Record.ResponseText, workflowInfo, costmodel.BaselineCost(lookup.Record.WorkflowName))
	return summary, true
}

func (d *Dispatcher) route(ctx context.Context, req Request, embedding []float32, embedErr error, collector *metrics.Collector) routercache.Result {
	if embedErr != nil {
		// ProviderUnavailable degrade per spec.md §7: skip the vector stage
		// entirely rather than feed a zero-value embedding into KNN.
		start := time.Now()
		lowered := strings.ToLower(req.Query)
		if name, ok := d.registry.MatchPattern(lowered); ok {
			evt := collector.StartEvent("routing", "pattern", nil)
			collector.EndEvent(evt, "success", nil)
			return routercache.Result{WorkflowName: name, Source: "pattern", RoutingTimeMS: msSince(start)}
		}
		evt := collector.StartEvent("routing", "fallback", nil)
		collector.EndEvent(evt, "success", nil)
		return routercache.Result{WorkflowName: workflow.DefaultWorkflowName, Source: routercache.SourceFallback, RoutingTimeMS: msSince(start)}
	}

	evt := collector.StartEvent("routing", "route", nil)
	result := d.routerCache.Route(ctx, req.Query, embedding, d.registry.MatchPattern, d.registry.IsRegistered)
	collector.EndEvent(evt, "success", map[string]any{"source": string(result.Source)})
	collector.RecordCacheCheck("router", result.Source == routercache.SourceVector, 0, result.RoutingTimeMS, 0, "")
	return result
}

func (d *Dispatcher) runWorkflow(ctx context.Context, wf *workflow.Workflow, base agentruntime.Context, collector *metrics.Collector) (records []agentruntime.AgentExecutionRecord, terminated bool, err error) {
	switch wf.Pattern {
	case workflow.PatternConcurrent:
		result := orchestration.Concurrent(ctx, wf.Tasks, base, d.runtime, d.concurrentCap, collector)
		d.recordAll(collector, wf.Tasks, result.Records)
		return result.Records, false, nil

	case workflow.PatternHandoff:
		entry, ok := wf.AgentByID(wf.EntryAgentID)
		if !ok {
			return nil, false, nil
		}
		resolve := func(id string) (agentruntime.Agent, bool) {
			t, ok := wf.AgentByID(id)
			if !ok {
				return nil, false
			}
			return t.Agent, true
		}
		result := orchestration.Handoff(ctx, entry.Agent, entry.Model, resolve, base, d.runtime, d.handoffMaxHops, collector)
		d.recordAll(collector, wf.Tasks, result.Records)
		return result.Records, false, nil

	default: // Sequential
		result := orchestration.Sequential(ctx, wf.Tasks, base, d.runtime, collector)
		d.recordAll(collector, wf.Tasks, result.Records)
		if result.Terminated {
			return result.Records, true, result.Failures.ErrorOrNil()
		}
		return result.Records, false, nil
	}
}

func (d *Dispatcher) recordAll(collector *metrics.Collector, tasks []orchestration.AgentTaskSpec, records []agentruntime.AgentExecutionRecord) {
	models := make(map[string]string, len(tasks))
	for _, t := range tasks {
		models[t.AgentID] = t.Model
	}
	for _, rec := range records {
		collector.RecordAgentExecution(rec, models[rec.AgentID])
	}
}

func (d *Dispatcher) synthesize(ctx context.Context, wf *workflow.Workflow, records []agentruntime.AgentExecutionRecord, base agentruntime.Context, collector *metrics.Collector) string {
	if wf.Synthesis != nil {
		synCtx := base
		synCtx.Prior = buildPrior(wf.Tasks, records)
		synRec := d.runtime.Invoke(ctx, wf.Synthesis.Agent, synCtx, wf.Synthesis.Model, collector)
		collector.RecordAgentExecution(synRec, wf.Synthesis.Model)
		if synRec.Status == agentruntime.StatusSuccess {
			return synRec.Output.Text
		}
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status == agentruntime.StatusSuccess {
			return records[i].Output.Text
		}
	}
	return base.Query
}

func buildPrior(tasks []orchestration.AgentTaskSpec, records []agentruntime.AgentExecutionRecord) map[string]agentruntime.AgentOutput {
	outputsKeyByAgent := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if t.OutputsKey != "" {
			outputsKeyByAgent[t.AgentID] = t.OutputsKey
		}
	}
	prior := make(map[string]agentruntime.AgentOutput, len(records))
	for _, rec := range records {
		if rec.Status != agentruntime.StatusSuccess {
			continue
		}
		key := outputsKeyByAgent[rec.AgentID]
		if key == "" {
			key = rec.AgentID
		}
		prior[key] = rec.Output
	}
	return prior
}

func (d *Dispatcher) storeBack(ctx context.Context, req Request, responseText string, embedding []float32, wf *workflow.Workflow, route routercache.Result, collector *metrics.Collector) {
	evt := collector.StartEvent("cache_store", "semantic", nil)
	if err := d.semanticCache.Store(ctx, req.Query, responseText, embedding, wf.Name, time.Now()); err != nil {
		collector.EndEvent(evt, "error", map[string]any{"error": err.Error()})
		collector.IncrementErrorCounter(string(apperr.CodeStoreUnavailable))
	} else {
		collector.EndEvent(evt, "success", nil)
	}

	if route.Source != routercache.SourceFallback {
		learnCtx := context.WithoutCancel(ctx)
		go func() {
			_ = d.routerCache.Learn(learnCtx, req.Query, embedding, wf.Name, time.Now())
		}()
	}
}

func (d *Dispatcher) appendTurns(ctx context.Context, userID, query, response string) {
	_ = d.memory.AppendTurn(ctx, userID, "user", query)
	_ = d.memory.AppendTurn(ctx, userID, "assistant", response)
}

func sessionIDFor(userID string, now time.Time) string {
	window := now.UTC().Truncate(time.Hour).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(userID + "|" + window))
	return hex.EncodeToString(sum[:8])
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
