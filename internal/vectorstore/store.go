// Package vectorstore wraps a Redis-compatible store that supports vector
// indices (RediSearch-style HNSW) behind the Store interface described in
// spec.md §4.2. All writes are single-key; the adapter never performs
// multi-key transactions.
package vectorstore

import (
	"context"
	"fmt"
)

// FieldKind distinguishes the auxiliary (non-vector) fields an index can
// carry alongside its embedding.
type FieldKind int

const (
	// FieldText is a full-text field (e.g. the original query/answer text).
	FieldText FieldKind = iota
	// FieldTag is an exact-match tag field used for filter conjunctions.
	FieldTag
	// FieldNumeric is a numeric field (e.g. a created_at timestamp).
	FieldNumeric
)

// FieldSchema names one auxiliary field of an index.
type FieldSchema struct {
	Name string
	Kind FieldKind
}

// IndexSchema describes a vector index: its dimension and its auxiliary
// fields. Two schemas are considered equal (for EnsureIndex idempotency)
// when they carry the same dimension and the same set of fields with the
// same kinds, independent of field order.
type IndexSchema struct {
	Dimension int
	Fields    []FieldSchema
}

// Equal reports whether s and other describe the same index shape.
func (s IndexSchema) Equal(other IndexSchema) bool {
	if s.Dimension != other.Dimension {
		return false
	}
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	a := make(map[string]FieldKind, len(s.Fields))
	for _, f := range s.Fields {
		a[f.Name] = f.Kind
	}
	for _, f := range other.Fields {
		k, ok := a[f.Name]
		if !ok || k != f.Kind {
			return false
		}
	}
	return true
}

// IndexSchemaConflictError is returned by EnsureIndex when an index with the
// given name already exists but its recorded schema does not match.
type IndexSchemaConflictError struct {
	Name string
}

func (e *IndexSchemaConflictError) Error() string {
	return fmt.Sprintf("vectorstore: index %q already exists with a conflicting schema", e.Name)
}

// Match is one KNN result: the hash id, the cosine distance (0 = identical,
// 2 = opposite), and the hash's stored fields.
type Match struct {
	ID       string
	Distance float64
	Fields   map[string]string
}

// Iterator walks the ids of every hash written under a prefix.
type Iterator interface {
	Next(ctx context.Context) bool
	ID() string
	Err() error
}

// Store is the capability surface spec.md §4.2 requires. Field values passed
// to Upsert are stored as Redis hash fields verbatim (string-encoded);
// Embedding is stored separately as a packed float32 vector field.
type Store interface {
	// EnsureIndex creates a vector index with HNSW/cosine/float32 over
	// prefix if one does not already exist. It is idempotent: calling it
	// again with the same schema is a no-op. A mismatched schema returns
	// *IndexSchemaConflictError.
	EnsureIndex(ctx context.Context, name, prefix string, schema IndexSchema) error

	// Upsert writes a hash under key prefix+id with the given fields and
	// embedding.
	Upsert(ctx context.Context, prefix, id string, fields map[string]string, embedding []float32) error

	// Get returns the hash fields stored for prefix+id, or ok=false if
	// absent. Whether the raw "embedding" field is among them depends on the
	// implementation: RedisStore returns the whole hash, MemoryStore returns
	// only the fields passed to Upsert.
	Get(ctx context.Context, prefix, id string) (fields map[string]string, ok bool, err error)

	// KNN returns the top-k matches for queryVec within index whose fields
	// satisfy filter (a conjunction of tag equalities), sorted by ascending
	// cosine distance.
	KNN(ctx context.Context, index string, queryVec []float32, k int, filter map[string]string) ([]Match, error)

	// Delete removes the hash at prefix+id. Deleting an absent key is a
	// no-op.
	Delete(ctx context.Context, prefix, id string) error

	// Scan returns an iterator over every id written under prefix.
	Scan(ctx context.Context, prefix string) (Iterator, error)
}

// StoreUnavailableError wraps a lower-level transport failure (timeout,
// connection refused, etc.) that spec.md §7 maps to StoreUnavailable
// degraded-mode handling at the cache layer.
type StoreUnavailableError struct {
	Op    string
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("vectorstore: %s: %v", e.Op, e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Cause }
