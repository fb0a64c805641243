// Package costmodel holds the pure, stateless pricing functions described in
// spec.md §4.1: token counting, per-model pricing, workflow baseline costs,
// and cache-savings arithmetic. Nothing in this package performs I/O.
package costmodel

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// tokensPerMessage and tokensPerRole mirror the fixed per-message billing overhead most
// chat-completion providers apply: a flat few tokens per message, plus one
// per named role field.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
)

// Price holds the per-1K-token rate for a chat model, or the single
// per-1K-token rate for an embedding model (InputPer1K only, OutputPer1K
// unused).
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// defaultFallbackTier is used for unknown models: the most expensive known
// tier (claude-3-opus in pricingTable), so an unrecognized model never
// silently under-bills.
var defaultFallbackTier = Price{InputPer1K: 0.015, OutputPer1K: 0.075}

// pricingTable is the static model -> price table. Embedding models carry
// their rate in InputPer1K; OutputPer1K is unused for them.
var pricingTable = map[string]Price{
	"gpt-4o":                {InputPer1K: 0.005, OutputPer1K: 0.015},
	"gpt-4o-mini":           {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":               {InputPer1K: 0.002, OutputPer1K: 0.008},
	"claude-3-5-sonnet":     {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku":      {InputPer1K: 0.0008, OutputPer1K: 0.004},
	"claude-3-opus":         {InputPer1K: 0.015, OutputPer1K: 0.075},
	"text-embedding-3-large": {InputPer1K: 0.00013},
	"text-embedding-3-small": {InputPer1K: 0.00002},
}

// baselineCosts precomputes sum(expected_tokens * model_price) for each named
// workflow's "uncached" execution. It is separate from the BaselineCostUSD
// that each internal/workflow.Workflow declares: the registry does not write
// to it, so it holds only the Default entry plus whatever callers add via
// RegisterBaselineCost.
var baselineCosts = map[string]float64{
	"Default": 0.01,
}

// priceFor returns the Price for model, falling back to the most expensive
// known tier (and logging a warning) for unrecognized models.
func priceFor(model string) Price {
	if p, ok := pricingTable[model]; ok {
		return p
	}
	log.Warn().Str("model", model).Msg("costmodel: unknown model, using fallback pricing tier")
	return defaultFallbackTier
}

// CountTokens estimates the token count of text for the given model. Callers
// that have an authoritative tokenizer (or a provider-reported usage count)
// should prefer that; this is the fallback heuristic (~4 chars/token),
// matching common provider approximations when no tokenizer is wired.
func CountTokens(model string, text string) int {
	_ = model
	if text == "" {
		return 0
	}
	n := len(text)
	return int(math.Ceil(float64(n) / 4.0))
}

// Message is the minimal shape CountMessages needs: a role and content pair.
type Message struct {
	Role    string
	Content string
}

// CountMessages sums CountTokens over each message's content and adds the
// fixed per-message framing overhead used to mirror provider billing.
func CountMessages(model string, messages []Message) int {
	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		if m.Role != "" {
			total += tokensPerRole
		}
		total += CountTokens(model, m.Content)
	}
	return total
}

// LLMCost returns the USD cost of a chat completion given token counts.
func LLMCost(model string, inputTokens, outputTokens int) float64 {
	p := priceFor(model)
	return float64(inputTokens)/1000.0*p.InputPer1K + float64(outputTokens)/1000.0*p.OutputPer1K
}

// EmbeddingCost returns the USD cost of an embedding call.
func EmbeddingCost(model string, tokens int) float64 {
	p := priceFor(model)
	return float64(tokens) / 1000.0 * p.InputPer1K
}

// BaselineCost returns the precomputed "uncached" execution cost estimate for
// a named workflow. Unknown workflow names fall back to the Default entry.
func BaselineCost(workflowName string) float64 {
	if c, ok := baselineCosts[workflowName]; ok {
		return c
	}
	return baselineCosts["Default"]
}

// RegisterBaselineCost adds (or overrides) a workflow's entry in the baseline
// table, making it reachable from cost-reporting code that only has a
// workflow name. workflow.Registry.Register does not call it.
func RegisterBaselineCost(workflowName string, usd float64) {
	baselineCosts[workflowName] = usd
}

// PricingTable returns a copy of the static model -> price table, for the
// read-only /metrics/pricing surface.
func PricingTable() map[string]Price {
	cp := make(map[string]Price, len(pricingTable))
	for k, v := range pricingTable {
		cp[k] = v
	}
	return cp
}

// BaselineCosts returns a copy of the registered workflow baseline costs.
func BaselineCosts() map[string]float64 {
	cp := make(map[string]float64, len(baselineCosts))
	for k, v := range baselineCosts {
		cp[k] = v
	}
	return cp
}

// CacheSavings returns the USD saved by serving hitLayer instead of executing
// the workflow whose baseline cost is given.
func CacheSavings(hitLayer string, model string, baseline float64) float64 {
	_ = model
	if strings.TrimSpace(hitLayer) == "" {
		return 0
	}
	if baseline < 0 {
		return 0
	}
	return baseline
}
