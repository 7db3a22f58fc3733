package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"tabrag/internal/port"
)

// OllamaLLM generates with a local Ollama model through langchaingo.
type OllamaLLM struct {
	llm         *ollama.LLM
	model       string
	temperature float64
}

func NewOllamaLLM(baseURL, model string, temperature float64) (*OllamaLLM, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaLLM{llm: llm, model: model, temperature: temperature}, nil
}

func (l *OllamaLLM) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	resp, err := l.llm.GenerateContent(ctx, messages(req), llms.WithTemperature(l.temperature))
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (l *OllamaLLM) ModelName() string {
	return l.model
}

func messages(req port.GenerateRequest) []llms.MessageContent {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
}
