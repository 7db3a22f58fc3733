package embedding

import (
	"fmt"

	"tabrag/config"
	"tabrag/internal/adapter/analyzer"
	"tabrag/internal/port"
)

// New builds the configured embedder wrapped in Throttled.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	var (
		embedder port.Embedder
		err      error
	)

	switch cfg.Provider {
	case "ollama":
		embedder, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.BatchSize)
	case "openai":
		embedder, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.BatchSize)
	case "hash":
		embedder = NewHashEmbedder(cfg.Dimension, analyzer.NewTokenizer())
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewThrottled(embedder, cfg.RequestsPerSecond, cfg.Timeout()), nil
}
