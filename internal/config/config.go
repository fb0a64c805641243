// Package config defines the typed configuration surface for the query
// front door: cache thresholds, TTLs, orchestration timeouts, and the
// connection settings for Redis and the LLM provider.
package config

import "time"

// RedisConfig configures the Redis-compatible store backing the vector
// indices and the tool result cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SemanticCacheConfig controls the semantic response cache (spec §4.3).
type SemanticCacheConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TTLSeconds          int     `yaml:"ttl_seconds"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
}

// RouterCacheConfig controls the router cache and its pattern fallback
// (spec §4.4).
type RouterCacheConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// ToolCacheConfig controls the exact-key tool result cache (spec §4.5).
type ToolCacheConfig struct {
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

// MemoryConfig controls the contextual memory service (spec §4.6).
type MemoryConfig struct {
	MaxTurnsPerUser int `yaml:"max_turns_per_user"`
}

// DispatcherConfig controls the end-to-end request flow (spec §4.10).
type DispatcherConfig struct {
	RequestDeadlineMS int `yaml:"request_deadline_ms"`
	ConcurrencyCap    int `yaml:"concurrency_cap"`
}

// OrchestrationConfig controls the agent orchestration patterns (spec §4.8).
type OrchestrationConfig struct {
	AgentTimeoutMS     int `yaml:"agent_timeout_ms"`
	ConcurrentCapMS    int `yaml:"concurrent_cap_ms"`
	HandoffMaxHops     int `yaml:"handoff_max_hops"`
}

// TargetsConfig defines the latency/cost targets reported in the
// PerformanceMetrics / CostBreakdown summaries (spec §4.11).
type TargetsConfig struct {
	LatencyMS float64 `yaml:"latency_ms"`
	CostUSD   float64 `yaml:"cost_usd"`
}

// ObservabilityConfig controls process-wide logging.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path,omitempty"`
}

// HTTPConfig controls the HTTP surface (spec §6).
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LLMConfig names the models the dispatcher asks the injected llm.Provider
// to run. The provider implementation itself (API keys, endpoints, retries)
// is never configured here — that capability surface is supplied directly
// to core.Init by the caller.
type LLMConfig struct {
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

// Config is the complete, explicit configuration for the service. There is
// no process-wide mutable config singleton; callers load a Config and pass
// it into core.Init to build a CoreServices value.
type Config struct {
	Redis          RedisConfig          `yaml:"redis"`
	SemanticCache  SemanticCacheConfig  `yaml:"semantic_cache"`
	RouterCache    RouterCacheConfig    `yaml:"router_cache"`
	ToolCache      ToolCacheConfig      `yaml:"tool_cache"`
	Memory         MemoryConfig         `yaml:"memory"`
	Dispatcher     DispatcherConfig     `yaml:"dispatcher"`
	Orchestration  OrchestrationConfig  `yaml:"orchestration"`
	Targets        TargetsConfig        `yaml:"targets"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	HTTP           HTTPConfig           `yaml:"http"`
	LLM            LLMConfig            `yaml:"llm"`
}

// Default returns a Config populated with every default named in spec.md §6.
func Default() Config {
	return Config{
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		SemanticCache: SemanticCacheConfig{
			SimilarityThreshold: 0.92,
			TTLSeconds:          3600,
			EmbeddingDim:        3072,
		},
		RouterCache: RouterCacheConfig{
			SimilarityThreshold: 0.90,
		},
		ToolCache: ToolCacheConfig{
			DefaultTTLSeconds: 300,
		},
		Memory: MemoryConfig{
			MaxTurnsPerUser: 50,
		},
		Dispatcher: DispatcherConfig{
			RequestDeadlineMS: 60000,
			ConcurrencyCap:    128,
		},
		Orchestration: OrchestrationConfig{
			AgentTimeoutMS:  20000,
			ConcurrentCapMS: 45000,
			HandoffMaxHops:  6,
		},
		Targets: TargetsConfig{
			LatencyMS: 2000,
			CostUSD:   0.02,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
		LLM: LLMConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		},
	}
}

// RequestDeadline returns the dispatcher request deadline as a time.Duration.
func (c Config) RequestDeadline() time.Duration {
	return time.Duration(c.Dispatcher.RequestDeadlineMS) * time.Millisecond
}

// AgentTimeout returns the per-agent invocation timeout.
func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.Orchestration.AgentTimeoutMS) * time.Millisecond
}

// ConcurrentCap returns the Concurrent-orchestration wall-clock cap.
func (c Config) ConcurrentCap() time.Duration {
	return time.Duration(c.Orchestration.ConcurrentCapMS) * time.Millisecond
}

// SemanticCacheTTL returns the semantic cache entry TTL.
func (c Config) SemanticCacheTTL() time.Duration {
	return time.Duration(c.SemanticCache.TTLSeconds) * time.Second
}

// ToolCacheDefaultTTL returns the default tool cache TTL.
func (c Config) ToolCacheDefaultTTL() time.Duration {
	return time.Duration(c.ToolCache.DefaultTTLSeconds) * time.Second
}
