package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, merges it over Default(), and
// rejects unknown keys so typos in the config file fail fast instead of
// being silently ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants that a zero-value or partially-specified YAML
// document could otherwise leave inconsistent.
func (c Config) Validate() error {
	if c.SemanticCache.SimilarityThreshold < 0 || c.SemanticCache.SimilarityThreshold > 1 {
		return fmt.Errorf("semantic_cache.similarity_threshold must be in [0,1], got %f", c.SemanticCache.SimilarityThreshold)
	}
	if c.RouterCache.SimilarityThreshold < 0 || c.RouterCache.SimilarityThreshold > 1 {
		return fmt.Errorf("router_cache.similarity_threshold must be in [0,1], got %f", c.RouterCache.SimilarityThreshold)
	}
	if c.SemanticCache.EmbeddingDim <= 0 {
		return fmt.Errorf("semantic_cache.embedding_dim must be positive, got %d", c.SemanticCache.EmbeddingDim)
	}
	if c.Dispatcher.ConcurrencyCap <= 0 {
		return fmt.Errorf("dispatcher.concurrency_cap must be positive, got %d", c.Dispatcher.ConcurrencyCap)
	}
	if c.Orchestration.HandoffMaxHops <= 0 {
		return fmt.Errorf("orchestration.handoff_max_hops must be positive, got %d", c.Orchestration.HandoffMaxHops)
	}
	return nil
}
