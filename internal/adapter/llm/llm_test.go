package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabrag/config"
	"tabrag/internal/port"
)

func TestExtractiveLLM(t *testing.T) {
	l := NewExtractiveLLM(2)

	out, err := l.Generate(context.Background(), port.GenerateRequest{
		Query:   "top items",
		Context: []string{"Item: Item A, Quantity: 150", "Item: Item B, Quantity: 120\n\nItem: Item C, Quantity: 90"},
	})
	require.NoError(t, err)
	assert.Equal(t, "From the indexed data:\n- Item: Item A, Quantity: 150\n- Item: Item B, Quantity: 120", out)

	out, err = l.Generate(context.Background(), port.GenerateRequest{Query: " weather "})
	require.NoError(t, err)
	assert.Contains(t, out, `"weather"`)
}

func TestExtractiveLLMCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractiveLLM(0).Generate(ctx, port.GenerateRequest{Query: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAILLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Item A sold 150."}}]}`))
	}))
	defer srv.Close()

	l, err := NewOpenAILLM("TABRAG_UNSET_KEY", "gpt-4o-mini", srv.URL, 0.1)
	require.NoError(t, err)

	out, err := l.Generate(context.Background(), port.GenerateRequest{System: "be brief", Prompt: "top items?"})
	require.NoError(t, err)
	assert.Equal(t, "Item A sold 150.", out)
}

func TestOllamaLLMUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	l, err := NewOllamaLLM(url, "tinyllama", 0.1)
	require.NoError(t, err)
	_, err = l.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	cfg := config.DefaultConfig().Generation
	cfg.Provider = "extractive"
	l, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "extractive", l.ModelName())

	cfg.Provider = "oracle"
	_, err = New(cfg)
	assert.Error(t, err)
}
