package main

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/intelligencedev/queryfrontd/internal/llm"
)

// devProvider is a deterministic, offline llm.Provider used when no real
// provider wiring is configured — the same role the teacher's "(dev) mock
// response" branch plays when OPENAI_API_KEY is unset, letting the binary
// run end to end without external credentials. Production deployments
// inject a real Provider implementation into core.Init instead.
type devProvider struct{}

func (devProvider) ChatComplete(_ context.Context, _ string, messages []llm.Message, _ []llm.ToolSchema) (llm.ChatResult, error) {
	var last string
	for _, m := range messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	return llm.ChatResult{Text: fmt.Sprintf("(dev) no provider configured; echoing: %s", last)}, nil
}

func (devProvider) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	dim := 3072
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vec, nil
}
