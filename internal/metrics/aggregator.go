package metrics

import (
	"sync"
	"time"

	"github.com/intelligencedev/queryfrontd/internal/costmodel"
)

// cacheLayerTotals accumulates one layer's {semantic, router, tool} outcomes
// across every request the process has served.
type cacheLayerTotals struct {
	checked int64
	hits    int64
}

// Aggregator is the process-wide counterpart to Collector: where a Collector
// is scoped to one request, Aggregator accumulates across every request the
// process serves, feeding the read-only /metrics/* endpoints (spec.md §6).
// Dispatcher callers record into it once per finished request, on finalize.
type Aggregator struct {
	mu sync.Mutex

	startedAt time.Time

	totalQueries int64
	cacheLayers  map[string]*cacheLayerTotals

	totalEmbeddingCostUSD float64
	totalLLMCostUSD       float64
	totalSavingsUSD       float64

	totalLatencyMS     int64
	latencyTargetMisses int64
	costTargetMisses    int64

	errorCounters map[string]int64
}

// NewAggregator builds an empty, process-lifetime Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startedAt:     time.Now(),
		cacheLayers:   map[string]*cacheLayerTotals{"semantic": {}, "router": {}, "tool": {}},
		errorCounters: make(map[string]int64),
	}
}

// Record folds one request's finalized EnhancedResponse into the running
// totals. Safe to call from multiple dispatcher goroutines concurrently.
func (a *Aggregator) Record(resp EnhancedResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalQueries++
	a.totalEmbeddingCostUSD += resp.Cost.EmbeddingCostUSD
	a.totalLLMCostUSD += resp.Cost.LLMCostUSD
	a.totalSavingsUSD += resp.Cost.CostSavingsUSD
	a.totalLatencyMS += resp.Performance.TotalTimeMS
	if !resp.Performance.MeetsLatencyTarget {
		a.latencyTargetMisses++
	}
	if !resp.Performance.MeetsCostTarget {
		a.costTargetMisses++
	}

	for _, layer := range resp.CacheLayers {
		totals, ok := a.cacheLayers[layer.Name]
		if !ok {
			totals = &cacheLayerTotals{}
			a.cacheLayers[layer.Name] = totals
		}
		if layer.Checked {
			totals.checked++
		}
		if layer.Hit {
			totals.hits++
		}
	}

	for code, n := range resp.Session.ErrorCounters {
		a.errorCounters[code] += int64(n)
	}
}

// PricingSnapshot is the /metrics/pricing response body.
type PricingSnapshot struct {
	Models            map[string]costmodel.Price
	WorkflowBaselines map[string]float64
}

// PricingSnapshot reports the static model price table and registered
// workflow baseline costs (spec.md §4.1).
func (a *Aggregator) PricingSnapshot() PricingSnapshot {
	return PricingSnapshot{
		Models:            costmodel.PricingTable(),
		WorkflowBaselines: costmodel.BaselineCosts(),
	}
}

// CacheLayerSnapshot is one row of the /metrics/cache response.
type CacheLayerSnapshot struct {
	Name        string
	Checked     int64
	Hits        int64
	HitRate     float64
}

// CacheSnapshot is the /metrics/cache response body.
type CacheSnapshot struct {
	Layers []CacheLayerSnapshot
}

// CacheSnapshot reports per-layer hit rates accumulated since startup.
func (a *Aggregator) CacheSnapshot() CacheSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	layers := make([]CacheLayerSnapshot, 0, len(a.cacheLayers))
	for _, name := range [...]string{"semantic", "router", "tool"} {
		totals := a.cacheLayers[name]
		if totals == nil {
			layers = append(layers, CacheLayerSnapshot{Name: name})
			continue
		}
		var rate float64
		if totals.checked > 0 {
			rate = float64(totals.hits) / float64(totals.checked)
		}
		layers = append(layers, CacheLayerSnapshot{
			Name:    name,
			Checked: totals.checked,
			Hits:    totals.hits,
			HitRate: rate,
		})
	}
	return CacheSnapshot{Layers: layers}
}

// PerformanceSnapshot is the /metrics/performance response body.
type PerformanceSnapshot struct {
	TotalQueries        int64
	AverageLatencyMS    float64
	LatencyTargetMisses int64
	CostTargetMisses    int64
	UptimeSeconds       float64
}

// PerformanceSnapshot reports latency/target-compliance totals since startup.
func (a *Aggregator) PerformanceSnapshot() PerformanceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var avg float64
	if a.totalQueries > 0 {
		avg = float64(a.totalLatencyMS) / float64(a.totalQueries)
	}
	return PerformanceSnapshot{
		TotalQueries:        a.totalQueries,
		AverageLatencyMS:    avg,
		LatencyTargetMisses: a.latencyTargetMisses,
		CostTargetMisses:    a.costTargetMisses,
		UptimeSeconds:       time.Since(a.startedAt).Seconds(),
	}
}

// Summary is the /metrics/summary response body: the whole-process rollup.
type Summary struct {
	TotalQueries          int64
	TotalEmbeddingCostUSD float64
	TotalLLMCostUSD       float64
	TotalCostUSD          float64
	TotalSavingsUSD       float64
	ErrorCounters         map[string]int64
	Performance           PerformanceSnapshot
	Cache                 CacheSnapshot
}

// Summary assembles the full process-wide rollup.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	errCounters := make(map[string]int64, len(a.errorCounters))
	for k, v := range a.errorCounters {
		errCounters[k] = v
	}
	totalCost := a.totalEmbeddingCostUSD + a.totalLLMCostUSD
	totalQueries := a.totalQueries
	totalEmbed := a.totalEmbeddingCostUSD
	totalLLM := a.totalLLMCostUSD
	totalSavings := a.totalSavingsUSD
	a.mu.Unlock()

	return Summary{
		TotalQueries:          totalQueries,
		TotalEmbeddingCostUSD: totalEmbed,
		TotalLLMCostUSD:       totalLLM,
		TotalCostUSD:          totalCost,
		TotalSavingsUSD:       totalSavings,
		ErrorCounters:         errCounters,
		Performance:           a.PerformanceSnapshot(),
		Cache:                 a.CacheSnapshot(),
	}
}
