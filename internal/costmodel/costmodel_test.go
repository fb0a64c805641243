package costmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokensEmpty(t *testing.T) {
	assert.Equal(t, 0, CountTokens("gpt-4o", ""))
}

func TestCountMessagesAddsFraming(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hi"},
	}
	got := CountMessages("gpt-4o", msgs)
	want := (tokensPerMessage + tokensPerRole + CountTokens("gpt-4o", "you are helpful")) +
		(tokensPerMessage + tokensPerRole + CountTokens("gpt-4o", "hi"))
	require.Equal(t, want, got)
}

func TestLLMCostKnownModel(t *testing.T) {
	cost := LLMCost("gpt-4o", 1000, 1000)
	assert.InDelta(t, 0.005+0.015, cost, 1e-9)
}

func TestLLMCostUnknownModelFallsBackToExpensiveTier(t *testing.T) {
	cost := LLMCost("some-future-model", 1000, 0)
	assert.InDelta(t, defaultFallbackTier.InputPer1K, cost, 1e-9)
}

func TestBaselineCostUnknownWorkflowFallsBackToDefault(t *testing.T) {
	assert.Equal(t, BaselineCost("Default"), BaselineCost("TotallyUnregisteredWorkflow"))
}

func TestRegisterBaselineCostOverrides(t *testing.T) {
	RegisterBaselineCost("QuickQuoteWorkflow", 0.0315)
	assert.Equal(t, 0.0315, BaselineCost("QuickQuoteWorkflow"))
}

func TestCacheSavingsEmptyLayerIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CacheSavings("", "gpt-4o", 0.05))
}

func TestCacheSavingsReturnsBaseline(t *testing.T) {
	assert.Equal(t, 0.05, CacheSavings("semantic", "gpt-4o", 0.05))
}
