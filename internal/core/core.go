// Package core wires the query front door's components into one explicit,
// dependency-injected CoreServices value: there is no process-wide mutable
// config singleton, and no global registries except the ones a caller
// builds and hands to Init. Grounded on the teacher's services.go lifecycle
// pattern, adapted to this service's cache/dispatcher/workflow shape.
package core

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
	"github.com/intelligencedev/queryfrontd/internal/config"
	"github.com/intelligencedev/queryfrontd/internal/dispatcher"
	"github.com/intelligencedev/queryfrontd/internal/llm"
	"github.com/intelligencedev/queryfrontd/internal/memory"
	"github.com/intelligencedev/queryfrontd/internal/metrics"
	"github.com/intelligencedev/queryfrontd/internal/routercache"
	"github.com/intelligencedev/queryfrontd/internal/semanticcache"
	"github.com/intelligencedev/queryfrontd/internal/toolcache"
	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
	"github.com/intelligencedev/queryfrontd/internal/workflow"
)

// CoreServices is every long-lived component the HTTP surface depends on.
// Callers build one via Init and pass it to internal/httpapi.NewServer;
// Close releases everything that owns a network connection or a goroutine
// pool.
type CoreServices struct {
	Config config.Config

	RedisClient redis.UniversalClient
	Store       vectorstore.Store

	SemanticCache *semanticcache.Cache
	RouterCache   *routercache.RouterCache
	ToolCache     *toolcache.Cache
	Memory        *memory.Service
	Registry      *workflow.Registry
	Runtime       *agentruntime.Runtime
	Dispatcher    *dispatcher.Dispatcher
	Aggregator    *metrics.Aggregator
}

// Init builds a CoreServices from cfg. provider is the caller-supplied LLM
// capability surface (spec.md §1 scopes its transport out of this module);
// workflows are registered on top of the always-present Default workflow —
// agent implementations are domain-specific and are never constructed here.
func Init(ctx context.Context, cfg config.Config, provider llm.Provider, workflows []*workflow.Workflow) (*CoreServices, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := vectorstore.New(redisClient)

	semCache := semanticcache.New(store, cfg.SemanticCache.EmbeddingDim, cfg.SemanticCacheTTL(), cfg.SemanticCache.SimilarityThreshold)
	if err := semCache.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	routerCache := routercache.New(store, cfg.SemanticCache.EmbeddingDim, cfg.RouterCache.SimilarityThreshold)
	if err := routerCache.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	toolCache := toolcache.New(redisClient, cfg.ToolCacheDefaultTTL())
	memSvc := memory.New(cfg.Memory.MaxTurnsPerUser)
	registry := workflow.NewDefaultRegistry()
	for _, wf := range workflows {
		registry.Register(wf)
	}
	runtime := agentruntime.New(cfg.AgentTimeout())

	d := dispatcher.New(dispatcher.Options{
		Provider:        provider,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		SemanticCache:   semCache,
		RouterCache:     routerCache,
		Memory:          memSvc,
		Registry:        registry,
		Runtime:         runtime,
		RequestDeadline: cfg.RequestDeadline(),
		ConcurrentCap:   cfg.ConcurrentCap(),
		HandoffMaxHops:  cfg.Orchestration.HandoffMaxHops,
		ConcurrencyCap:  cfg.Dispatcher.ConcurrencyCap,
		Targets:         metrics.Targets{LatencyMS: cfg.Targets.LatencyMS, CostUSD: cfg.Targets.CostUSD},
	})

	return &CoreServices{
		Config:        cfg,
		RedisClient:   redisClient,
		Store:         store,
		SemanticCache: semCache,
		RouterCache:   routerCache,
		ToolCache:     toolCache,
		Memory:        memSvc,
		Registry:      registry,
		Runtime:       runtime,
		Dispatcher:    d,
		Aggregator:    metrics.NewAggregator(),
	}, nil
}

// Close releases every resource CoreServices owns: the dispatcher's worker
// pool, then the shared Redis connection.
func (s *CoreServices) Close() error {
	s.Dispatcher.Close()
	return s.RedisClient.Close()
}
