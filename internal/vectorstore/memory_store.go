package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store implementation used by tests (and by
// any caller that wants a vector store without a Redis dependency). It
// performs brute-force cosine distance ranking, which is adequate for the
// small fixtures this module's tests exercise.
type MemoryStore struct {
	mu       sync.RWMutex
	schemas  map[string]IndexSchema
	prefixes map[string]string
	hashes   map[string]map[string]string
	vectors  map[string][]float32
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemas:  make(map[string]IndexSchema),
		prefixes: make(map[string]string),
		hashes:   make(map[string]map[string]string),
		vectors:  make(map[string][]float32),
	}
}

func (m *MemoryStore) EnsureIndex(_ context.Context, name, prefix string, schema IndexSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.schemas[name]; ok {
		if !prev.Equal(schema) {
			return &IndexSchemaConflictError{Name: name}
		}
		return nil
	}
	m.schemas[name] = schema
	m.prefixes[name] = prefix
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, prefix, id string, fields map[string]string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := prefix + id
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.hashes[key] = cp
	if embedding != nil {
		v := make([]float32, len(embedding))
		copy(v, embedding)
		m.vectors[key] = v
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, prefix, id string) (map[string]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := prefix + id
	fields, ok := m.hashes[key]
	if !ok {
		return nil, false, nil
	}
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, prefix, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := prefix + id
	delete(m.hashes, key)
	delete(m.vectors, key)
	return nil
}

func (m *MemoryStore) Scan(_ context.Context, prefix string) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for key := range m.hashes {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(ids)
	return &memoryIterator{ids: ids, pos: -1}, nil
}

type memoryIterator struct {
	ids []string
	pos int
}

func (it *memoryIterator) Next(context.Context) bool {
	it.pos++
	return it.pos < len(it.ids)
}
func (it *memoryIterator) ID() string { return it.ids[it.pos] }
func (it *memoryIterator) Err() error { return nil }

// KNN scopes the brute-force scan to the key prefix that EnsureIndex
// recorded for index, then applies filter, matching Redis's own
// filter-then-KNN semantics. For an index that EnsureIndex never created,
// no prefix is known and every stored vector is scanned.
func (m *MemoryStore) KNN(_ context.Context, index string, queryVec []float32, k int, filter map[string]string) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 1
	}
	prefix, scoped := m.prefixes[index]
	qnorm := norm(queryVec)
	results := make([]Match, 0, len(m.vectors))
	for key, v := range m.vectors {
		if scoped && !strings.HasPrefix(key, prefix) {
			continue
		}
		fields := m.hashes[key]
		if !matchesFilter(fields, filter) {
			continue
		}
		dist := 1 - cosine(queryVec, v, qnorm)
		results = append(results, Match{ID: key, Distance: dist, Fields: fields})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func matchesFilter(fields map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if fields[k] != v {
			return false
		}
	}
	return true
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
