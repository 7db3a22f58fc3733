package port

import "context"

// GenerateRequest is a single generation call.
// Prompt is the fully rendered user prompt; Query and Context are kept so
// backends that do not run a model can work from the raw material.
type GenerateRequest struct {
	System  string
	Prompt  string
	Query   string
	Context []string
}

// LLM represents a language model for text generation.
type LLM interface {
	// Generate produces a completion for the request.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
