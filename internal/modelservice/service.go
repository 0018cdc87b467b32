// Package modelservice provides the minimal "generate" contract the core
// consumes for background extraction, profile regeneration, and summary
// generation, plus the router, retry, and circuit-breaker layers around it.
// Grounded on the teacher's pkg/connector AIProvider interface and its
// Anthropic/OpenAI provider implementations, narrowed to a single
// request-scoped text-completion call (no streaming, no tools).
package modelservice

import "context"

// Request is one core-model call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Response is a completed core-model call.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Service is a named backend capable of a single-shot generate call,
// grounded on the teacher's AIProvider.Generate.
type Service interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}
