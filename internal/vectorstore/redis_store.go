package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// schemaMarkerSuffix names the side-channel hash EnsureIndex uses to detect
// schema conflicts on repeat calls, since RediSearch's FT.INFO reply shape is
// awkward to diff field-by-field across server versions.
const schemaMarkerSuffix = "__schema__"

// RedisStore is the Store implementation backed by a Redis-compatible server
// with the RediSearch module (FT.CREATE/FT.SEARCH) loaded.
type RedisStore struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client. The caller owns the client's lifecycle
// (Close it on shutdown via CoreServices).
func New(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func fieldTypeName(k FieldKind) string {
	switch k {
	case FieldTag:
		return "TAG"
	case FieldNumeric:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

func (s *RedisStore) EnsureIndex(ctx context.Context, name, prefix string, schema IndexSchema) error {
	markerKey := prefix + schemaMarkerSuffix
	encoded, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal schema: %w", err)
	}

	existing, err := s.client.Get(ctx, markerKey).Result()
	if err == nil {
		var prev IndexSchema
		if jerr := json.Unmarshal([]byte(existing), &prev); jerr == nil {
			if !prev.Equal(schema) {
				return &IndexSchemaConflictError{Name: name}
			}
			// Same schema: idempotent no-op, the index already exists.
			return nil
		}
	} else if err != redis.Nil {
		return &StoreUnavailableError{Op: "EnsureIndex.Get", Cause: err}
	}

	args := []interface{}{
		"FT.CREATE", name,
		"ON", "HASH",
		"PREFIX", "1", prefix,
		"SCHEMA",
	}
	for _, f := range schema.Fields {
		args = append(args, f.Name, fieldTypeName(f.Kind))
	}
	args = append(args,
		"embedding", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(schema.Dimension),
		"DISTANCE_METRIC", "COSINE",
	)

	if err := s.client.Do(ctx, args...).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			// Created out-of-band (or by a racing peer) with no marker yet;
			// trust it and record the marker so future calls are fast.
			log.Warn().Str("index", name).Msg("vectorstore: index exists without a schema marker, adopting")
		} else {
			return &StoreUnavailableError{Op: "FT.CREATE", Cause: err}
		}
	}

	if err := s.client.Set(ctx, markerKey, encoded, 0).Err(); err != nil {
		return &StoreUnavailableError{Op: "EnsureIndex.Set", Cause: err}
	}
	return nil
}

func (s *RedisStore) Upsert(ctx context.Context, prefix, id string, fields map[string]string, embedding []float32) error {
	key := prefix + id
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	if embedding != nil {
		payload["embedding"] = encodeVector(embedding)
	}
	if err := s.client.HSet(ctx, key, payload).Err(); err != nil {
		return &StoreUnavailableError{Op: "HSET", Cause: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, prefix, id string) (map[string]string, bool, error) {
	key := prefix + id
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, &StoreUnavailableError{Op: "HGETALL", Cause: err}
	}
	if len(res) == 0 {
		return nil, false, nil
	}
	return res, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, prefix, id string) error {
	key := prefix + id
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return &StoreUnavailableError{Op: "DEL", Cause: err}
	}
	return nil
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) (Iterator, error) {
	pattern := prefix + "*"
	it := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	return &redisIterator{it: it, prefix: prefix}, nil
}

type redisIterator struct {
	it     *redis.ScanIterator
	prefix string
	cur    string
}

func (i *redisIterator) Next(ctx context.Context) bool {
	for i.it.Next(ctx) {
		key := i.it.Val()
		if strings.HasSuffix(key, schemaMarkerSuffix) {
			continue
		}
		i.cur = strings.TrimPrefix(key, i.prefix)
		return true
	}
	return false
}

func (i *redisIterator) ID() string  { return i.cur }
func (i *redisIterator) Err() error  { return i.it.Err() }

// escapeTag escapes RediSearch TAG-field special characters in a filter
// value so filters built from arbitrary strings (tickers, workflow names)
// cannot break out of the query syntax.
func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';', '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+', '=', '~', '|', ' ':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func buildFilterQuery(filter map[string]string) string {
	if len(filter) == 0 {
		return "*"
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", k, escapeTag(filter[k])))
	}
	return strings.Join(parts, " ")
}

func (s *RedisStore) KNN(ctx context.Context, index string, queryVec []float32, k int, filter map[string]string) ([]Match, error) {
	if k <= 0 {
		k = 1
	}
	filterQuery := buildFilterQuery(filter)
	query := fmt.Sprintf("(%s)=>[KNN %d @embedding $BLOB AS __dist]", filterQuery, k)

	reply, err := s.client.Do(ctx, "FT.SEARCH", index, query,
		"PARAMS", "2", "BLOB", encodeVector(queryVec),
		"SORTBY", "__dist",
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, &StoreUnavailableError{Op: "FT.SEARCH", Cause: err}
	}
	return parseSearchReply(reply)
}

// parseSearchReply parses RESP2-style FT.SEARCH replies:
// [total, id1, [field1, val1, field2, val2, ...], id2, [...], ...]
func parseSearchReply(reply interface{}) ([]Match, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, (len(arr)-1)/2)
	for i := 1; i+1 < len(arr); i += 2 {
		id, _ := arr[i].(string)
		fieldList, _ := arr[i+1].([]interface{})
		fields := make(map[string]string, len(fieldList)/2)
		var dist float64
		for j := 0; j+1 < len(fieldList); j += 2 {
			name := fmt.Sprintf("%v", fieldList[j])
			val := fmt.Sprintf("%v", fieldList[j+1])
			if name == "__dist" {
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					dist = f
				}
				continue
			}
			fields[name] = val
		}
		matches = append(matches, Match{ID: id, Distance: dist, Fields: fields})
	}
	return matches, nil
}
