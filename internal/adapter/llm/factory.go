// Package llm holds the generation backends.
package llm

import (
	"fmt"

	"tabrag/config"
	"tabrag/internal/port"
)

// New builds the configured generation backend.
func New(cfg config.GenerationConfig) (port.LLM, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaLLM(cfg.BaseURL, cfg.Model, cfg.Temperature)
	case "openai":
		return NewOpenAILLM(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Temperature)
	case "extractive":
		return NewExtractiveLLM(0), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}
