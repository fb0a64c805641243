package semanticcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/queryfrontd/internal/costmodel"
	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	c := New(store, 3, time.Hour, 0.92)
	require.NoError(t, c.EnsureIndex(context.Background()))
	return c
}

func TestNormalizeCollapsesWhitespaceAndCase(t *testing.T) {
	require.Equal(t, "what is the price", Normalize("  What Is   the\tPrice  "))
}

func TestStableHashIsDeterministic(t *testing.T) {
	require.Equal(t, StableHash("abc"), StableHash("abc"))
	require.NotEqual(t, StableHash("abc"), StableHash("abd"))
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t)
	res, err := c.Lookup(context.Background(), []float32{1, 0, 0}, time.Now())
	require.NoError(t, err)
	require.False(t, res.Hit)
	require.Equal(t, 0.0, res.Similarity)
}

func TestStoreThenLookupExactHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	costmodel.RegisterBaselineCost("QuickQuoteWorkflow", 0.0315)

	require.NoError(t, c.Store(ctx, "what is the current price of AAPL", "AAPL is $190", []float32{1, 0, 0}, "QuickQuoteWorkflow", now))

	res, err := c.Lookup(ctx, []float32{1, 0, 0}, now)
	require.NoError(t, err)
	require.True(t, res.Hit)
	require.GreaterOrEqual(t, res.Similarity, 0.999)
	require.Equal(t, "what is the current price of AAPL", res.CachedQuery)
	require.Equal(t, 0.0315, res.CostSavedUSD)
}

func TestLookupBelowThresholdIsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, c.Store(ctx, "price of AAPL", "x", []float32{1, 0, 0}, "Default", now))

	// Similarity between (1,0,0) and (0.88, sqrt(1-0.88^2), 0) is ~0.88.
	near := []float32{0.88, 0.475, 0}
	res, err := c.Lookup(ctx, near, now)
	require.NoError(t, err)
	require.False(t, res.Hit)
	require.Greater(t, res.Similarity, 0.0)
}

func TestSimilarityExactlyAtThresholdIsHit(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	c := New(store, 2, time.Hour, 0.90)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, c.EnsureIndex(ctx))
	require.NoError(t, c.Store(ctx, "q", "a", []float32{1, 0}, "Default", now))

	// cos(theta) = 0.90 exactly: theta = acos(0.9).
	res, err := c.Lookup(ctx, []float32{0.9, 0.43588989}, now)
	require.NoError(t, err)
	require.True(t, res.Hit)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, c.Store(ctx, "q", "a", []float32{1, 0, 0}, "Default", past))

	res, err := c.Lookup(ctx, []float32{1, 0, 0}, time.Now())
	require.NoError(t, err)
	require.False(t, res.Hit)
}

func TestIncrementUsageAccumulates(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, c.Store(ctx, "q", "some response text", []float32{1, 0, 0}, "Default", now))
	key := StableHash(Normalize("q"))

	require.NoError(t, c.IncrementUsage(ctx, key, 10))
	require.NoError(t, c.IncrementUsage(ctx, key, 5))

	fields, ok, err := c.store.Get(ctx, keyPrefix, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", fields["usage_count"])
	require.Equal(t, "15", fields["tokens_saved"])
	// The stored fields must survive the counter-only refresh.
	require.Equal(t, "some response text", fields["response_text"])
}

func TestStoreOverwriteResetsUsageCounters(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, c.Store(ctx, "q", "a", []float32{1, 0, 0}, "Default", now))
	key := StableHash(Normalize("q"))
	require.NoError(t, c.IncrementUsage(ctx, key, 10))

	require.NoError(t, c.Store(ctx, "q", "a2", []float32{1, 0, 0}, "Default", now))
	fields, ok, err := c.store.Get(ctx, keyPrefix, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0", fields["usage_count"])
	require.Equal(t, "a2", fields["response_text"])
}
