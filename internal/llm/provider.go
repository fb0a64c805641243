// Package llm declares the thin capability surface the query front door
// requires from a chat+embeddings provider. Transport details (API keys,
// endpoints, retries, concrete model SDKs) are out of scope per the
// specification and live behind whatever Provider implementation a caller
// injects into core.Init.
package llm

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// ToolSchema describes a tool an agent may call, passed through to the
// provider so it can decide whether/how to invoke it.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatResult is what a chat completion call returns. InputTokens/OutputTokens
// are populated when the provider surfaces them directly; when absent, the
// caller falls back to internal/costmodel.CountMessages/CountTokens.
type ChatResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	HasUsage     bool
}

// Provider is the capability surface an agent runtime and the semantic/router
// caches depend on. Concrete implementations wrap a specific LLM and
// embedding SDK; none is vendored into this module.
type Provider interface {
	ChatComplete(ctx context.Context, model string, messages []Message, tools []ToolSchema) (ChatResult, error)
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}
