package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
	"github.com/intelligencedev/queryfrontd/internal/dispatcher"
	"github.com/intelligencedev/queryfrontd/internal/llm"
	"github.com/intelligencedev/queryfrontd/internal/memory"
	"github.com/intelligencedev/queryfrontd/internal/metrics"
	"github.com/intelligencedev/queryfrontd/internal/orchestration"
	"github.com/intelligencedev/queryfrontd/internal/routercache"
	"github.com/intelligencedev/queryfrontd/internal/semanticcache"
	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
	"github.com/intelligencedev/queryfrontd/internal/workflow"
)

const testDimension = 16

type fakeProvider struct{}

func (fakeProvider) ChatComplete(_ context.Context, _ string, _ []llm.Message, _ []llm.ToolSchema) (llm.ChatResult, error) {
	return llm.ChatResult{Text: "synthesized answer"}, nil
}

func (fakeProvider) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, testDimension)
	for i := 0; i < testDimension; i++ {
		vec[i] = float32(sum[i]) / 255.0
	}
	return vec, nil
}

type quoteAgent struct{}

func (quoteAgent) ID() string                { return "MarketDataAgent" }
func (quoteAgent) GetInstructions() string   { return "quote the requested ticker" }
func (quoteAgent) ListTools() []llm.ToolSchema { return nil }
func (quoteAgent) Invoke(_ context.Context, invCtx agentruntime.Context) (agentruntime.AgentOutput, error) {
	return agentruntime.AgentOutput{Text: "AAPL is trading at $190.00"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	sc := semanticcache.New(store, testDimension, time.Hour, 0.92)
	rc := routercache.New(store, testDimension, 0.75)
	require.NoError(t, sc.EnsureIndex(context.Background()))
	require.NoError(t, rc.EnsureIndex(context.Background()))

	registry := workflow.NewDefaultRegistry()
	registry.Register(&workflow.Workflow{
		Name:    "QuickQuoteWorkflow",
		Pattern: workflow.PatternSequential,
		Tasks: []orchestration.AgentTaskSpec{
			{AgentID: "MarketDataAgent", Agent: quoteAgent{}, Model: "gpt-4o-mini", OutputsKey: "quote"},
		},
		BaselineCostUSD: 0.0315,
		RoutingPatterns: workflow.CompilePatterns(`(current )?price of [A-Z]+`),
	})

	d := dispatcher.New(dispatcher.Options{
		Provider:        fakeProvider{},
		EmbeddingModel:  "text-embedding-3-small",
		SemanticCache:   sc,
		RouterCache:     rc,
		Memory:          memory.New(50),
		Registry:        registry,
		Runtime:         agentruntime.New(5 * time.Second),
		RequestDeadline: 10 * time.Second,
		ConcurrentCap:   200 * time.Millisecond,
		HandoffMaxHops:  6,
		ConcurrencyCap:  0,
		Targets:         metrics.Targets{LatencyMS: 5000, CostUSD: 1},
	})
	return NewServer(d, metrics.NewAggregator(), store)
}

func TestHandleQueryReturnsEnhancedResponse(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(queryRequestBody{Query: "current price of AAPL", UserID: "u1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp metrics.EnhancedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "QuickQuoteWorkflow", resp.Workflow.Name)
	require.NotEmpty(t, resp.QueryID)
}

func TestHandleLegacyQueryReturnsTrimmedShape(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(queryRequestBody{Query: "current price of AAPL", UserID: "u1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp legacyQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "QuickQuoteWorkflow", resp.WorkflowName)
	require.Contains(t, resp.AgentsUsed, "MarketDataAgent")
}

func TestHandleQueryRejectsMissingUserID(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(queryRequestBody{Query: "current price of AAPL"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryMalformedBodyIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointsServeAfterQueries(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(queryRequestBody{Query: "current price of AAPL", UserID: "u1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/metrics/pricing", "/metrics/cache", "/metrics/performance", "/metrics/summary"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHealthzReportsOK(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
