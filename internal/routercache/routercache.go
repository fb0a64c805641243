// Package routercache implements the two-stage routing lookup from spec.md
// §4.4: a vector-similarity stage, a regex pattern-match fallback, and a
// final "Default" fallback. Successful non-fallback routes are learned back
// into the vector index asynchronously.
package routercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
)

const (
	indexName = "router_cache_idx"
	keyPrefix = "router:"
	// vectorCandidates bounds how many KNN matches are pulled for tie-break
	// consideration; the effective result is always a single workflow name.
	vectorCandidates = 5
	// similarityEpsilon treats matches within this distance of the best
	// match as tied for tie-break purposes.
	similarityEpsilon = 1e-6
)

// Source identifies which stage produced a route.
type Source string

const (
	SourceVector   Source = "vector"
	SourceFallback Source = "fallback"
)

// RouteEntry mirrors the Route Entry data model in spec.md §3.
type RouteEntry struct {
	RouteKey             string
	PatternText          string
	WorkflowName         string
	CreatedAt            int64
	UsageCount           int64
	ConfidenceThreshold  float64
}

// Result is returned by Route.
type Result struct {
	WorkflowName string
	Entry        *RouteEntry
	Source       Source
	RoutingTimeMS float64
}

// RouterCache is the router cache. The pattern-fallback collaborator (owned
// by the workflow registry) is passed to Route as a PatternMatchFunc, so this
// package has no dependency on the workflow package.
type RouterCache struct {
	store     vectorstore.Store
	dimension int
	threshold float64
}

// New builds a RouterCache. dimension must match the embedding provider.
func New(store vectorstore.Store, dimension int, threshold float64) *RouterCache {
	return &RouterCache{store: store, dimension: dimension, threshold: threshold}
}

// EnsureIndex idempotently creates the router_cache index.
func (r *RouterCache) EnsureIndex(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, indexName, keyPrefix, vectorstore.IndexSchema{
		Dimension: r.dimension,
		Fields: []vectorstore.FieldSchema{
			{Name: "pattern_text", Kind: vectorstore.FieldText},
			{Name: "workflow_name", Kind: vectorstore.FieldTag},
			{Name: "created_at", Kind: vectorstore.FieldNumeric},
		},
	})
}

// PatternMatchFunc matches a lowercased query against the registered
// workflows' routing regexes (spec.md §4.4 pattern stage), returning the
// matched workflow name.
type PatternMatchFunc func(lowercasedQuery string) (workflowName string, ok bool)

// IsRegisteredFunc reports whether workflowName is registered, used to
// validate a vector-stage hit per the Route Entry invariant in spec.md §3.
type IsRegisteredFunc func(workflowName string) bool

// Route performs the two-stage lookup described in spec.md §4.4 and falls
// back to "Default" when neither stage matches.
func (r *RouterCache) Route(ctx context.Context, queryText string, queryEmbedding []float32, matchPattern PatternMatchFunc, isRegistered IsRegisteredFunc) Result {
	start := time.Now()

	if entry, ok := r.vectorStage(ctx, queryEmbedding, isRegistered); ok {
		return Result{WorkflowName: entry.WorkflowName, Entry: entry, Source: SourceVector, RoutingTimeMS: msFloat(time.Since(start))}
	}

	lowered := strings.ToLower(queryText)
	if name, ok := matchPattern(lowered); ok {
		return Result{WorkflowName: name, Entry: nil, Source: "pattern", RoutingTimeMS: msFloat(time.Since(start))}
	}

	return Result{WorkflowName: "Default", Entry: nil, Source: SourceFallback, RoutingTimeMS: msFloat(time.Since(start))}
}

func (r *RouterCache) vectorStage(ctx context.Context, queryEmbedding []float32, isRegistered IsRegisteredFunc) (*RouteEntry, bool) {
	matches, err := r.store.KNN(ctx, indexName, queryEmbedding, vectorCandidates, nil)
	if err != nil {
		log.Warn().Err(err).Msg("routercache: KNN failed, degrading to pattern stage")
		return nil, false
	}
	if len(matches) == 0 {
		return nil, false
	}

	best := matches[0].Distance
	var candidates []RouteEntry
	for _, m := range matches {
		if m.Distance > best+similarityEpsilon {
			break
		}
		entry := entryFromFields(m.Fields)
		if isRegistered != nil && !isRegistered(entry.WorkflowName) {
			continue
		}
		candidates = append(candidates, entry)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	similarity := 1 - best
	threshold := r.threshold
	if candidates[0].ConfidenceThreshold > 0 {
		threshold = candidates[0].ConfidenceThreshold
	}
	if similarity+1e-6 < threshold {
		return nil, false
	}

	// Tie-break: prefer the route with the higher usage_count, then the
	// most recently created.
	top := candidates[0]
	for _, c := range candidates[1:] {
		if c.UsageCount > top.UsageCount || (c.UsageCount == top.UsageCount && c.CreatedAt > top.CreatedAt) {
			top = c
		}
	}
	return &top, true
}

// Learn upserts a new route entry keyed by a stable hash of queryText. It is
// meant to be invoked from a goroutine by the dispatcher (spec.md §4.4:
// "asynchronously upsert a new route entry").
func (r *RouterCache) Learn(ctx context.Context, queryText string, queryEmbedding []float32, workflowName string, now time.Time) error {
	key := StableHash(queryText)
	fields, ok, err := r.store.Get(ctx, keyPrefix, key)
	var usage int64
	if err == nil && ok {
		usage = parseInt64(fields["usage_count"])
	}
	newFields := map[string]string{
		"pattern_text":  queryText,
		"workflow_name": workflowName,
		"created_at":    strconv.FormatInt(now.UnixMilli(), 10),
		"usage_count":   strconv.FormatInt(usage+1, 10),
	}
	return r.store.Upsert(ctx, keyPrefix, key, newFields, queryEmbedding)
}

// StableHash returns a stable hex-encoded hash of text, used as a route_key.
func StableHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

func entryFromFields(fields map[string]string) RouteEntry {
	return RouteEntry{
		PatternText:  fields["pattern_text"],
		WorkflowName: fields["workflow_name"],
		CreatedAt:    parseInt64(fields["created_at"]),
		UsageCount:   parseInt64(fields["usage_count"]),
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
