// Package ai implements the intent extraction pipeline: a provider-agnostic
// prompt is sent to the primary language model, falls over to the secondary
// on failure, and degrades to deterministic keyword rules when both are
// unreachable. The caller always gets a usable Intent, never a raw provider
// error.
package ai

import "context"

// CompletionRequest is the input to a single model inference call. The
// shape is provider-agnostic; adapters translate to their own transport.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the model's raw output plus usage metadata.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
}

// Provider is implemented by each LLM backend. Complete must honor ctx
// cancellation and request a JSON object response where the API supports
// it.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
