package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatorRecordAccumulatesAcrossRequests(t *testing.T) {
	a := NewAggregator()

	a.Record(EnhancedResponse{
		Cost:        CostBreakdown{EmbeddingCostUSD: 0.001, LLMCostUSD: 0.01, CostSavingsUSD: 0},
		Performance: PerformanceMetrics{TotalTimeMS: 120, MeetsLatencyTarget: true, MeetsCostTarget: true},
		CacheLayers: []CacheLayerMetrics{
			{Name: "semantic", Checked: true, Hit: false},
			{Name: "router", Checked: true, Hit: true},
			{Name: "tool", Checked: false},
		},
		Session: SessionMetrics{ErrorCounters: map[string]int{}},
	})
	a.Record(EnhancedResponse{
		Cost:        CostBreakdown{EmbeddingCostUSD: 0, LLMCostUSD: 0, CostSavingsUSD: 0.01},
		Performance: PerformanceMetrics{TotalTimeMS: 5, MeetsLatencyTarget: true, MeetsCostTarget: true},
		CacheLayers: []CacheLayerMetrics{
			{Name: "semantic", Checked: true, Hit: true},
			{Name: "router", Checked: false},
			{Name: "tool", Checked: false},
		},
		Session: SessionMetrics{ErrorCounters: map[string]int{"StoreUnavailable": 1}},
	})

	summary := a.Summary()
	require.Equal(t, int64(2), summary.TotalQueries)
	require.InDelta(t, 0.011, summary.TotalCostUSD, 1e-9)
	require.InDelta(t, 0.01, summary.TotalSavingsUSD, 1e-9)
	require.Equal(t, int64(1), summary.ErrorCounters["StoreUnavailable"])

	cache := a.CacheSnapshot()
	require.Len(t, cache.Layers, 3)
	require.Equal(t, "semantic", cache.Layers[0].Name)
	require.Equal(t, int64(2), cache.Layers[0].Checked)
	require.Equal(t, int64(1), cache.Layers[0].Hits)
	require.InDelta(t, 0.5, cache.Layers[0].HitRate, 1e-9)

	perf := a.PerformanceSnapshot()
	require.Equal(t, int64(2), perf.TotalQueries)
	require.InDelta(t, 62.5, perf.AverageLatencyMS, 1e-9)
}

func TestAggregatorPricingSnapshotReflectsCostmodel(t *testing.T) {
	a := NewAggregator()
	snap := a.PricingSnapshot()
	require.NotEmpty(t, snap.Models)
	require.Contains(t, snap.WorkflowBaselines, "Default")
}
