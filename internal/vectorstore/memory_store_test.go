package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Upsert(ctx, "semantic:", "abc", map[string]string{"query_text": "hi"}, []float32{1, 0, 0})
	require.NoError(t, err)

	fields, ok, err := s.Get(ctx, "semantic:", "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hi", fields["query_text"])

	require.NoError(t, s.Delete(ctx, "semantic:", "abc"))
	_, ok, err = s.Get(ctx, "semantic:", "abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreKNNOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, "semantic:", "exact", nil, []float32{1, 0, 0}))
	require.NoError(t, s.Upsert(ctx, "semantic:", "near", nil, []float32{0.9, 0.1, 0}))
	require.NoError(t, s.Upsert(ctx, "semantic:", "far", nil, []float32{0, 1, 0}))

	matches, err := s.KNN(ctx, "semantic_idx", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "semantic:exact", matches[0].ID)
	require.InDelta(t, 0, matches[0].Distance, 1e-6)
	require.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestMemoryStoreKNNHonorsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, "router:", "a", map[string]string{"workflow": "Default"}, []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "router:", "b", map[string]string{"workflow": "QuickQuote"}, []float32{1, 0}))

	matches, err := s.KNN(ctx, "router_idx", []float32{1, 0}, 5, map[string]string{"workflow": "QuickQuote"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "router:b", matches[0].ID)
}

func TestMemoryStoreEnsureIndexConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureIndex(ctx, "semantic_idx", "semantic:", IndexSchema{Dimension: 4}))
	err := s.EnsureIndex(ctx, "semantic_idx", "semantic:", IndexSchema{Dimension: 8})
	require.Error(t, err)
	var conflict *IndexSchemaConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestMemoryStoreScanLimitedToPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, "tool:", "1", nil, nil))
	require.NoError(t, s.Upsert(ctx, "semantic:", "2", nil, nil))

	it, err := s.Scan(ctx, "tool:")
	require.NoError(t, err)
	var ids []string
	for it.Next(ctx) {
		ids = append(ids, it.ID())
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"1"}, ids)
}
