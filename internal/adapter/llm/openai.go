package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tabrag/internal/port"
)

// OpenAILLM uses the chat completions API of OpenAI or a compatible server.
type OpenAILLM struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewOpenAILLM(apiKeyEnv, model, baseURL string, temperature float64) (*OpenAILLM, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if apiKey == "" {
		apiKey = "unused"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAILLM{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}, nil
}

func (l *OpenAILLM) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(l.model),
		Messages:    msgs,
		Temperature: openai.Float(l.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) ModelName() string {
	return l.model
}
