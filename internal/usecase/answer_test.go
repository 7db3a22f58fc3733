package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabrag/internal/adapter/llm"
	"tabrag/internal/domain"
	"tabrag/internal/port"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (e *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fixedEmbedder) Dimension() int    { return len(e.vec) }
func (e *fixedEmbedder) ModelName() string { return "fixed" }

type fixedSearcher struct {
	results []domain.ScoredChunk
	gotK    int
}

func (s *fixedSearcher) Search(query []float32, k int) []domain.ScoredChunk {
	s.gotK = k
	if k < len(s.results) {
		return s.results[:k]
	}
	return s.results
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

type recordingLLM struct {
	mu       sync.Mutex
	requests []port.GenerateRequest
	reply    string
	err      error
	deadline bool
}

func (l *recordingLLM) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	_, l.deadline = ctx.Deadline()
	if l.err != nil {
		return "", l.err
	}
	return l.reply, nil
}

func (l *recordingLLM) ModelName() string { return "recording" }

func scored(path string, score float64, text string) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: domain.ChunkID(path, 1, 0), SourcePath: path, DocIndex: 1, Text: text},
		Score: score,
	}
}

func newTestAnswerer(s port.Searcher, ready bool, l port.LLM, opts AnswerOptions) *Answerer {
	if opts.Threshold == 0 {
		opts.Threshold = 0.15
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = "I don't have information about that in the indexed data."
	}
	a := NewAnswerer(&fixedEmbedder{vec: []float32{1, 0}}, s, readiness(ready), l, opts, zerolog.Nop())
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a
}

func TestAnswerRejectsBlankQuery(t *testing.T) {
	a := newTestAnswerer(&fixedSearcher{}, false, &recordingLLM{}, AnswerOptions{})
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := a.Answer(context.Background(), q, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	}
}

func TestAnswerNotReady(t *testing.T) {
	l := &recordingLLM{}
	a := newTestAnswerer(&fixedSearcher{}, false, l, AnswerOptions{})

	_, err := a.Answer(context.Background(), "top items", 2)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
	assert.Empty(t, l.requests)
}

func TestAnswerGrounded(t *testing.T) {
	s := &fixedSearcher{results: []domain.ScoredChunk{
		scored("items.csv", 0.58, "Item: Item A, Quantity: 150"),
		scored("stock.csv", 0.41, "Item: Item B, Quantity: 120"),
	}}
	l := &recordingLLM{reply: "  Item A (150) and Item B (120).\n"}
	a := newTestAnswerer(s, true, l, AnswerOptions{SystemPrompt: "be brief"})

	ans, err := a.Answer(context.Background(), "  top items ", 0)
	require.NoError(t, err)

	assert.True(t, ans.Grounded)
	assert.Equal(t, "Item A (150) and Item B (120).", ans.Text)
	assert.Equal(t, "top items", ans.Query)
	assert.Equal(t, []string{"items.csv#1:0", "stock.csv#1:0"}, ans.RetrievedChunkIDs)
	assert.Len(t, ans.Sources, 2)
	assert.Equal(t, time.Unix(1700000000, 0), ans.Timestamp)
	assert.Equal(t, 2, s.gotK, "k <= 0 uses the default")

	require.Len(t, l.requests, 1)
	req := l.requests[0]
	assert.Equal(t, "be brief", req.System)
	assert.Equal(t, []string{"Item: Item A, Quantity: 150", "Item: Item B, Quantity: 120"}, req.Context)
	assert.Contains(t, req.Prompt, "[1] items.csv\nItem: Item A, Quantity: 150")
	assert.Contains(t, req.Prompt, "[2] stock.csv")
	assert.Contains(t, req.Prompt, "Question: top items")
	assert.True(t, l.deadline, "generation runs with a timeout")
}

func TestAnswerThresholdIsInclusive(t *testing.T) {
	tests := []struct {
		score    float64
		grounded bool
	}{
		{0.15, true},
		{0.1499, false},
		{0.9, true},
		{-0.2, false},
	}
	for _, tt := range tests {
		s := &fixedSearcher{results: []domain.ScoredChunk{scored("a.csv", tt.score, "x")}}
		a := newTestAnswerer(s, true, &recordingLLM{reply: "ok"}, AnswerOptions{})

		ans, err := a.Answer(context.Background(), "q", 1)
		require.NoError(t, err)
		assert.Equal(t, tt.grounded, ans.Grounded, "score %v", tt.score)
	}
}

func TestAnswerFallbackGenerates(t *testing.T) {
	s := &fixedSearcher{results: []domain.ScoredChunk{scored("items.csv", 0.05, "Item: Item A")}}
	l := &recordingLLM{reply: "I could not find the weather in the data."}
	a := newTestAnswerer(s, true, l, AnswerOptions{})

	ans, err := a.Answer(context.Background(), "weather in paris", 2)
	require.NoError(t, err)

	assert.False(t, ans.Grounded)
	assert.Equal(t, []string{"items.csv#1:0"}, ans.RetrievedChunkIDs)
	assert.Empty(t, ans.Sources)
	require.Len(t, l.requests, 1)
	assert.Empty(t, l.requests[0].Context)
	assert.Contains(t, l.requests[0].Prompt, "Question: weather in paris")
	assert.NotContains(t, l.requests[0].Prompt, "Item A")
}

func TestAnswerFallbackTemplate(t *testing.T) {
	l := &recordingLLM{reply: "should not be used"}
	a := newTestAnswerer(&fixedSearcher{}, true, l, AnswerOptions{Fallback: FallbackTemplate, FallbackMessage: "Nothing found."})

	ans, err := a.Answer(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Equal(t, "Nothing found.", ans.Text)
	assert.Empty(t, ans.RetrievedChunkIDs)
	assert.Empty(t, l.requests)
}

func TestAnswerAutoFallbackByKeyword(t *testing.T) {
	tests := []struct {
		query     string
		templated bool
	}{
		{"what is the price of the lamb curry", true},
		{"Weekly DEMAND for rice", true},
		{"tell me a joke", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := &fixedSearcher{results: []domain.ScoredChunk{scored("items.csv", 0.02, "Item: Item A")}}
			l := &recordingLLM{reply: "Here is one."}
			a := newTestAnswerer(s, true, l, AnswerOptions{
				Fallback:         FallbackAuto,
				FallbackMessage:  "Nothing found.",
				TemplateKeywords: []string{"price", "demand"},
			})

			ans, err := a.Answer(context.Background(), tt.query, 2)
			require.NoError(t, err)
			assert.False(t, ans.Grounded)
			if tt.templated {
				assert.Equal(t, "Nothing found.", ans.Text)
				assert.Empty(t, l.requests)
			} else {
				assert.Equal(t, "Here is one.", ans.Text)
				assert.Len(t, l.requests, 1)
			}
		})
	}
}

func TestAnswerAutoFallbackKeepsGroundedAnswers(t *testing.T) {
	s := &fixedSearcher{results: []domain.ScoredChunk{scored("items.csv", 0.6, "Item: Item A, Price: 9")}}
	l := &recordingLLM{reply: "Item A costs 9."}
	a := newTestAnswerer(s, true, l, AnswerOptions{Fallback: FallbackAuto, TemplateKeywords: []string{"price"}})

	ans, err := a.Answer(context.Background(), "price of item a", 2)
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	assert.Equal(t, "Item A costs 9.", ans.Text)
}

func TestAnswerConversationalReplies(t *testing.T) {
	opts := AnswerOptions{
		Greetings:       []string{"hi", "good morning"},
		GreetingReply:   "Hello!",
		MinQueryLength:  3,
		ShortQueryReply: "Could you be more specific?",
	}
	tests := []struct {
		query string
		want  string
	}{
		{"Hi!", "Hello!"},
		{"good   Morning?", "Hello!"},
		{"ok", "Could you be more specific?"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := &fixedSearcher{results: []domain.ScoredChunk{scored("items.csv", 0.9, "x")}}
			l := &recordingLLM{reply: "generated"}
			a := newTestAnswerer(s, true, l, opts)

			ans, err := a.Answer(context.Background(), tt.query, 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ans.Text)
			assert.False(t, ans.Grounded)
			assert.Empty(t, ans.RetrievedChunkIDs)
			assert.Empty(t, l.requests)
			assert.Zero(t, s.gotK, "the index is not searched")
		})
	}

	a := newTestAnswerer(&fixedSearcher{}, false, &recordingLLM{}, opts)
	_, err := a.Answer(context.Background(), "hi", 2)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestAnswerGenerationFailureIsSurfaced(t *testing.T) {
	for _, results := range [][]domain.ScoredChunk{
		{scored("a.csv", 0.9, "x")},
		nil,
	} {
		l := &recordingLLM{err: errors.New("dial tcp 127.0.0.1:11434: connection refused")}
		a := newTestAnswerer(&fixedSearcher{results: results}, true, l, AnswerOptions{})

		ans, err := a.Answer(context.Background(), "q", 2)
		assert.Nil(t, ans)
		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
		assert.Len(t, l.requests, 1, "a failed generation is not retried as fallback")
	}
}

func TestAnswerEmbeddingFailure(t *testing.T) {
	l := &recordingLLM{}
	a := NewAnswerer(&fixedEmbedder{err: errors.New("timeout")}, &fixedSearcher{}, readiness(true), l, AnswerOptions{}, zerolog.Nop())

	_, err := a.Answer(context.Background(), "q", 2)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Empty(t, l.requests)
}

func TestAnswerTabularScenario(t *testing.T) {
	f := newIngestFixture(t)
	f.write(t, "sales.csv", itemsCSV)
	_, err := f.ingester.RunOnce(context.Background(), nil)
	require.NoError(t, err)

	a := NewAnswerer(f.embedder, f.index, f.ingester, llm.NewExtractiveLLM(0), AnswerOptions{TopK: 2, Threshold: 0.15}, zerolog.Nop())

	ans, err := a.Answer(context.Background(), "top items", 2)
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	assert.Len(t, ans.RetrievedChunkIDs, 2)
	for _, id := range ans.RetrievedChunkIDs {
		assert.True(t, strings.HasPrefix(id, "sales.csv#"), id)
	}
	assert.Contains(t, ans.Text, "Item: Item")
}
