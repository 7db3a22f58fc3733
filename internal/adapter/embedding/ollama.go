package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder embeds text with a local Ollama model through langchaingo.
type OllamaEmbedder struct {
	embedder  *embeddings.EmbedderImpl
	model     string
	dimension atomic.Int64
}

func NewOllamaEmbedder(baseURL, model string, dimension, batchSize int) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
	}

	if dimension <= 0 {
		dimension = knownDimension(model)
	}
	e := &OllamaEmbedder{embedder: embedder, model: model}
	e.dimension.Store(int64(dimension))
	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if len(vectors[0]) > 0 {
		e.dimension.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
