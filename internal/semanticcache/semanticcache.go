// Package semanticcache implements the semantic response cache described in
// spec.md §4.3: "for the same semantic intent, at most one authoritative
// answer is served, and its retrieval is observable."
package semanticcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/intelligencedev/queryfrontd/internal/costmodel"
	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
)

const (
	indexName = "semantic_cache_idx"
	keyPrefix = "semantic:"
)

// Entry mirrors the Cache Entry data model in spec.md §3.
type Entry struct {
	CacheKey     string
	QueryText    string
	ResponseText string
	Embedding    []float32
	CreatedAt    int64 // unix ms
	TTLSeconds   int
	UsageCount   int64
	TokensSaved  int64
	WorkflowName string
}

// expired reports whether e is logically absent at instant now.
func (e Entry) expired(now time.Time) bool {
	deadline := time.UnixMilli(e.CreatedAt).Add(time.Duration(e.TTLSeconds) * time.Second)
	return now.After(deadline)
}

// LookupResult is returned by Lookup. Similarity is reported even on a miss,
// per spec.md §4.3, to support near-hit analysis.
type LookupResult struct {
	Hit          bool
	Record       *Entry
	Similarity   float64
	QueryTimeMS  float64
	CachedQuery  string
	CostSavedUSD float64
}

// Cache is the semantic response cache. It is safe for concurrent use.
type Cache struct {
	store     vectorstore.Store
	dimension int
	ttl       time.Duration
	threshold float64

	// storeGroup collapses concurrent Store calls for the same cache key
	// (e.g. two in-flight requests answering the same semantic intent at
	// once) into a single write.
	storeGroup singleflight.Group
}

// New builds a Cache over store. dimension must match the embedding provider
// in use; threshold is the default similarity cutoff (spec.md default 0.92).
func New(store vectorstore.Store, dimension int, ttl time.Duration, threshold float64) *Cache {
	return &Cache{store: store, dimension: dimension, ttl: ttl, threshold: threshold}
}

// EnsureIndex idempotently creates the semantic_cache index.
func (c *Cache) EnsureIndex(ctx context.Context) error {
	return c.store.EnsureIndex(ctx, indexName, keyPrefix, vectorstore.IndexSchema{
		Dimension: c.dimension,
		Fields: []vectorstore.FieldSchema{
			{Name: "query_text", Kind: vectorstore.FieldText},
			{Name: "workflow_name", Kind: vectorstore.FieldTag},
			{Name: "created_at", Kind: vectorstore.FieldNumeric},
		},
	})
}

// Normalize lowercases, trims, and collapses interior whitespace. The
// normalized form is only used for cache-key stability; semantic matching via
// KNN is the lookup's actual authority.
func Normalize(query string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	return strings.Join(fields, " ")
}

// StableHash returns a stable hex-encoded hash of normalized text, used as a
// cache_key for idempotent writes.
func StableHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Lookup embeds-and-searches semantics: the caller supplies the already
// computed query embedding (embedding is an out-of-scope collaborator per
// spec.md §1); Lookup performs the KNN(k=1) and threshold comparison.
func (c *Cache) Lookup(ctx context.Context, queryEmbedding []float32, now time.Time) (LookupResult, error) {
	start := time.Now()
	matches, err := c.store.KNN(ctx, indexName, queryEmbedding, 1, nil)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn().Err(err).Msg("semanticcache: KNN failed, degrading to miss")
		return LookupResult{Hit: false, Similarity: 0, QueryTimeMS: msFloat(elapsed)}, err
	}
	if len(matches) == 0 {
		return LookupResult{Hit: false, Similarity: 0, QueryTimeMS: msFloat(elapsed)}, nil
	}

	m := matches[0]
	similarity := 1 - m.Distance
	entry := entryFromFields(m.Fields)
	if entry.expired(now) {
		return LookupResult{Hit: false, Similarity: similarity, QueryTimeMS: msFloat(elapsed)}, nil
	}

	if similarity+1e-6 < c.threshold {
		return LookupResult{Hit: false, Similarity: similarity, QueryTimeMS: msFloat(elapsed)}, nil
	}

	baseline := costmodel.BaselineCost(entry.WorkflowName)
	return LookupResult{
		Hit:          true,
		Record:       &entry,
		Similarity:   similarity,
		QueryTimeMS:  msFloat(elapsed),
		CachedQuery:  entry.QueryText,
		CostSavedUSD: costmodel.CacheSavings("semantic", "", baseline),
	}, nil
}

// Store writes (or refreshes) the cache entry for query/response. Overwriting
// an existing key is permitted and treated as a refresh: usage_count and
// tokens_saved reset to zero per spec.md §4.3. Concurrent Store calls for
// the same normalized query collapse into a single Upsert via storeGroup —
// the dispatcher's own request path is the only writer, but nothing stops
// two near-simultaneous cache misses for the same intent from both reaching
// here.
func (c *Cache) Store(ctx context.Context, queryText, responseText string, embedding []float32, workflowName string, now time.Time) error {
	key := StableHash(Normalize(queryText))
	_, err, _ := c.storeGroup.Do(key, func() (any, error) {
		fields := map[string]string{
			"query_text":    queryText,
			"response_text": responseText,
			"workflow_name": workflowName,
			"created_at":    strconv.FormatInt(now.UnixMilli(), 10),
			"ttl_seconds":   strconv.Itoa(int(c.ttl / time.Second)),
			"usage_count":   "0",
			"tokens_saved":  "0",
		}
		return nil, c.store.Upsert(ctx, keyPrefix, key, fields, embedding)
	})
	return err
}

// IncrementUsage bumps usage_count and tokens_saved for the entry identified
// by cacheKey. The read-modify-write here is not atomic; concurrent writers
// may lose updates, which spec.md §4.3 explicitly tolerates (usage_count is
// advisory).
func (c *Cache) IncrementUsage(ctx context.Context, cacheKey string, tokensInResponse int) error {
	fields, ok, err := c.store.Get(ctx, keyPrefix, cacheKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	usage := parseInt64(fields["usage_count"]) + 1
	saved := parseInt64(fields["tokens_saved"]) + int64(tokensInResponse)
	fields["usage_count"] = strconv.FormatInt(usage, 10)
	fields["tokens_saved"] = strconv.FormatInt(saved, 10)
	return c.store.Upsert(ctx, keyPrefix, cacheKey, fields, nil)
}

func entryFromFields(fields map[string]string) Entry {
	return Entry{
		QueryText:    fields["query_text"],
		ResponseText: fields["response_text"],
		WorkflowName: fields["workflow_name"],
		CreatedAt:    parseInt64(fields["created_at"]),
		TTLSeconds:   int(parseInt64(fields["ttl_seconds"])),
		UsageCount:   parseInt64(fields["usage_count"]),
		TokensSaved:  parseInt64(fields["tokens_saved"]),
	}
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func msFloat(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
