package vectorstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestRedisStoreUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.Upsert(ctx, "semantic:", "k1", map[string]string{"query_text": "hello"}, []float32{0.1, 0.2}))

	fields, ok, err := store.Get(ctx, "semantic:", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", fields["query_text"])
	require.Equal(t, decodeVector([]byte(fields["embedding"])), []float32{0.1, 0.2})

	require.NoError(t, store.Delete(ctx, "semantic:", "k1"))
	_, ok, err = store.Get(ctx, "semantic:", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	_, ok, err := store.Get(ctx, "semantic:", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreScanLimitedToPrefix(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	require.NoError(t, store.Upsert(ctx, "tool:", "a", map[string]string{"x": "1"}, nil))
	require.NoError(t, store.Upsert(ctx, "semantic:", "b", map[string]string{"x": "2"}, nil))

	it, err := store.Scan(ctx, "tool:")
	require.NoError(t, err)
	var ids []string
	for it.Next(ctx) {
		ids = append(ids, it.ID())
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"a"}, ids)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	require.Equal(t, v, decodeVector(encodeVector(v)))
}

func TestBuildFilterQueryEmpty(t *testing.T) {
	require.Equal(t, "*", buildFilterQuery(nil))
}

func TestBuildFilterQueryEscapesAndSorts(t *testing.T) {
	q := buildFilterQuery(map[string]string{"b": "x y", "a": "AAPL"})
	require.Equal(t, "@a:{AAPL} @b:{x\\ y}", q)
}

func TestParseSearchReply(t *testing.T) {
	reply := []interface{}{
		int64(1),
		"semantic:k1",
		[]interface{}{"query_text", "hi", "__dist", "0.01"},
	}
	matches, err := parseSearchReply(reply)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "semantic:k1", matches[0].ID)
	require.InDelta(t, 0.01, matches[0].Distance, 1e-9)
	require.Equal(t, "hi", matches[0].Fields["query_text"])
	_, hasDist := matches[0].Fields["__dist"]
	require.False(t, hasDist)
}
