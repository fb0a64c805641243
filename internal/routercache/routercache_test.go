package routercache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
)

func newTestRouter(t *testing.T) *RouterCache {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	r := New(store, 3, 0.90)
	require.NoError(t, r.EnsureIndex(context.Background()))
	return r
}

func alwaysRegistered(string) bool { return true }

func noPatternMatch(string) (string, bool) { return "", false }

func TestRouteFallsBackToDefaultWhenNothingMatches(t *testing.T) {
	r := newTestRouter(t)
	res := r.Route(context.Background(), "some unseen query", []float32{1, 0, 0}, noPatternMatch, alwaysRegistered)
	require.Equal(t, "Default", res.WorkflowName)
	require.Equal(t, SourceFallback, res.Source)
}

func TestRoutePatternStageWinsWhenVectorStageMisses(t *testing.T) {
	r := newTestRouter(t)
	matchFn := func(q string) (string, bool) {
		if q == "should i buy tsla" {
			return "InvestmentAnalysisWorkflow", true
		}
		return "", false
	}
	res := r.Route(context.Background(), "Should I buy TSLA", []float32{1, 0, 0}, matchFn, alwaysRegistered)
	require.Equal(t, "InvestmentAnalysisWorkflow", res.WorkflowName)
	require.Equal(t, Source("pattern"), res.Source)
}

func TestRouteVectorStageWinsAboveThreshold(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, r.Learn(ctx, "price of AAPL", []float32{1, 0, 0}, "QuickQuoteWorkflow", time.Now()))

	res := r.Route(ctx, "price of AAPL", []float32{1, 0, 0}, noPatternMatch, alwaysRegistered)
	require.Equal(t, "QuickQuoteWorkflow", res.WorkflowName)
	require.Equal(t, SourceVector, res.Source)
}

func TestRouteVectorStageSkipsUnregisteredWorkflow(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, r.Learn(ctx, "price of AAPL", []float32{1, 0, 0}, "RemovedWorkflow", time.Now()))

	neverRegistered := func(string) bool { return false }
	res := r.Route(ctx, "price of AAPL", []float32{1, 0, 0}, noPatternMatch, neverRegistered)
	require.Equal(t, "Default", res.WorkflowName)
}

func TestLearnIncrementsUsageCountOnRepeat(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, r.Learn(ctx, "buy AAPL", []float32{1, 0, 0}, "InvestmentAnalysisWorkflow", time.Now()))
	require.NoError(t, r.Learn(ctx, "buy AAPL", []float32{1, 0, 0}, "InvestmentAnalysisWorkflow", time.Now()))

	key := StableHash("buy AAPL")
	fields, ok, err := r.store.Get(ctx, keyPrefix, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", fields["usage_count"])
}

func TestTieBreakPrefersHigherUsageCount(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()
	store := r.store
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, keyPrefix, "a", map[string]string{
		"workflow_name": "WorkflowA", "usage_count": "1", "created_at": "1000",
	}, []float32{1, 0, 0}))
	require.NoError(t, store.Upsert(ctx, keyPrefix, "b", map[string]string{
		"workflow_name": "WorkflowB", "usage_count": "5", "created_at": "999",
	}, []float32{1, 0, 0}))
	_ = now

	res := r.Route(ctx, "price of AAPL", []float32{1, 0, 0}, noPatternMatch, alwaysRegistered)
	require.Equal(t, "WorkflowB", res.WorkflowName)
}
