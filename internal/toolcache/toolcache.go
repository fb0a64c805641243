// Package toolcache implements the exact-key, TTL'd tool result cache from
// spec.md §4.5. Keys are a stable hash of (tool_name, canonical(parameters));
// there is no semantic matching.
package toolcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a key-value cache over a Redis-compatible client. It carries no
// vector-search dependency; plain GET/SET with TTL is sufficient.
type Cache struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
}

// New builds a Cache. defaultTTL is used for tool names that do not match
// any of the known classes in classTTLs.
func New(client redis.UniversalClient, defaultTTL time.Duration) *Cache {
	return &Cache{client: client, defaultTTL: defaultTTL}
}

// classTTLs assigns the per-tool-class TTLs named in spec.md §4.5. Matching
// is by substring against the tool name so callers can name tools freely
// (e.g. "get_market_quote", "news_search_v2") without a rigid enum.
var classTTLs = []struct {
	substr string
	ttl    time.Duration
}{
	{"quote", 300 * time.Second},
	{"market", 300 * time.Second},
	{"news", 3600 * time.Second},
	{"fundamental", 86400 * time.Second},
	{"document", 3600 * time.Second},
	{"retrieval", 3600 * time.Second},
}

// TTLForTool returns the class-based TTL for toolName, falling back to
// defaultTTL when no class matches.
func (c *Cache) TTLForTool(toolName string) time.Duration {
	for _, ct := range classTTLs {
		if containsFold(toolName, ct.substr) {
			return ct.ttl
		}
	}
	return c.defaultTTL
}

func containsFold(s, substr string) bool {
	sl, subl := len(s), len(substr)
	if subl == 0 || subl > sl {
		return subl == 0
	}
	lower := func(b byte) byte {
		if b >= 'A' && b <= 'Z' {
			return b + ('a' - 'A')
		}
		return b
	}
	for i := 0; i+subl <= sl; i++ {
		match := true
		for j := 0; j < subl; j++ {
			if lower(s[i+j]) != lower(substr[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Key returns the stable cache key for (toolName, parameters).
func Key(toolName string, parameters map[string]any) (string, error) {
	canon, err := canonicalize(parameters)
	if err != nil {
		return "", fmt.Errorf("toolcache: canonicalize parameters: %w", err)
	}
	sum := sha256.Sum256([]byte(toolName + "\x00" + canon))
	return "tool:" + toolName + ":" + hex.EncodeToString(sum[:]), nil
}

// canonicalize sorts object keys (encoding/json already does this for
// map[string]any) and produces a deterministic byte representation of
// parameters independent of map iteration order.
func canonicalize(parameters map[string]any) (string, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	b, err := json.Marshal(normalize(parameters))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	default:
		return t
	}
}

// Get returns the cached value for key, or ok=false on a miss (absent or
// past TTL -- Redis' own expiry makes those indistinguishable).
func (c *Cache) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set writes value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
