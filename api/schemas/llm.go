package schemas

import "context"

// GenerationOptions tunes a single LLM call.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is the provider-agnostic input to an LLM call. History
// carries the conversation so far; providers map roles onto their own wire
// formats.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	History      []Message         `json:"history"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is the minimal surface the agent needs from a language model
// provider. Implementations live in internal/llmclient.
type LLMClient interface {
	// Generate returns the raw text of the model's reply.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
