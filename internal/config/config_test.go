package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "semantic_cache:\n  similarity_threshold: 0.8\nredis:\n  addr: \"redis:6380\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 0.8, cfg.SemanticCache.SimilarityThreshold)
	require.Equal(t, "redis:6380", cfg.Redis.Addr)
	// Untouched defaults survive the merge.
	require.Equal(t, 0.90, cfg.RouterCache.SimilarityThreshold)
	require.Equal(t, 50, cfg.Memory.MaxTurnsPerUser)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "semantic_cache:\n  similarty_threshold: 0.8\n" // typo'd key
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.SemanticCache.SimilarityThreshold = 1.5
	require.Error(t, cfg.Validate())
}
