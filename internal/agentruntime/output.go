package agentruntime

import "time"

// OutputKind discriminates the concrete payload carried by a Structured
// output, per spec.md §9 ("tagged variant of concrete output kinds").
type OutputKind string

const (
	KindFreeText       OutputKind = "free_text"
	KindMarketQuote    OutputKind = "market_quote"
	KindSentimentScore OutputKind = "sentiment_score"
	KindRiskReport     OutputKind = "risk_report"
)

// MarketQuote is the structured payload for a price-lookup style agent.
type MarketQuote struct {
	Ticker   string
	Price    float64
	Currency string
	AsOf     time.Time
}

// SentimentScore is the structured payload for a sentiment-analysis agent.
type SentimentScore struct {
	Subject   string
	Score     float64 // in [-1, 1]
	Rationale string
}

// RiskReport is the structured payload for a risk-assessment agent.
type RiskReport struct {
	Summary   string
	RiskLevel string
	Factors   []string
}

// Structured is the tagged variant of an agent's non-text output. Exactly
// one of the kind-matching fields is populated, selected by Kind.
type Structured struct {
	Kind           OutputKind
	MarketQuote    *MarketQuote
	SentimentScore *SentimentScore
	RiskReport     *RiskReport
}

// HandoffKind is the two-case discriminant required of a Handoff entry
// agent's output (spec.md §4.8, §9): the step either names the next agent
// or declares itself done. Never represented as a free-form map.
type HandoffKind string

const (
	HandoffNext HandoffKind = "next_agent"
	HandoffDone HandoffKind = "done"
)

// Handoff is the two-case variant an agent participating in Handoff
// orchestration must populate on its AgentOutput.
type Handoff struct {
	Kind      HandoffKind
	NextAgent string // set iff Kind == HandoffNext
}

// TokenUsage is what the backing LLM call reported directly, when it did.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// AgentOutput is what Agent.Invoke returns: text, an optional structured
// payload, optional raw token usage, and (only meaningful under Handoff
// orchestration) a handoff directive.
type AgentOutput struct {
	Text          string
	Structured    *Structured
	RawTokenUsage *TokenUsage
	Handoff       *Handoff
}
