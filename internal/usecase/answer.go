package usecase

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/prompts"

	"tabrag/config"
	"tabrag/internal/domain"
	"tabrag/internal/port"
)

var (
	//go:embed templates/grounded.tmpl
	groundedTemplate string

	//go:embed templates/fallback.tmpl
	fallbackTemplate string
)

const (
	FallbackGenerate = "generate"
	FallbackTemplate = "template"
	// FallbackAuto uses the template reply for queries that mention one of
	// the template keywords and generates a reply for everything else.
	FallbackAuto = "auto"
)

// AnswerOptions tune the query pipeline.
type AnswerOptions struct {
	TopK            int
	Threshold       float64
	Fallback        string
	FallbackMessage string
	SystemPrompt    string
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration

	// TemplateKeywords select the template reply under FallbackAuto.
	TemplateKeywords []string

	// Greetings are answered with GreetingReply without touching the index.
	Greetings     []string
	GreetingReply string

	// Queries shorter than MinQueryLength runes get ShortQueryReply.
	// Zero disables the check.
	MinQueryLength  int
	ShortQueryReply string
}

// OptionsFromConfig maps configuration onto AnswerOptions.
func OptionsFromConfig(cfg *config.Config) AnswerOptions {
	return AnswerOptions{
		TopK:             cfg.Query.TopK,
		Threshold:        cfg.Query.RelevanceThreshold,
		Fallback:         cfg.Query.Fallback,
		FallbackMessage:  cfg.Query.FallbackMessage,
		TemplateKeywords: cfg.Query.TemplateKeywords,
		SystemPrompt:     cfg.Query.SystemPrompt,
		Greetings:        cfg.Query.Greetings,
		GreetingReply:    cfg.Query.GreetingReply,
		MinQueryLength:   cfg.Query.MinQueryLength,
		ShortQueryReply:  cfg.Query.ShortQueryReply,
		EmbedTimeout:     cfg.Embedding.Timeout(),
		GenerateTimeout:  cfg.Generation.Timeout(),
	}
}

// Answerer turns a question into an answer grounded on the index when the
// index has something relevant, and into a fallback reply otherwise.
type Answerer struct {
	embedder  port.Embedder
	searcher  port.Searcher
	readiness port.Readiness
	llm       port.LLM
	opts      AnswerOptions
	logger    zerolog.Logger

	grounded prompts.PromptTemplate
	fallback prompts.PromptTemplate
	now      func() time.Time
}

func NewAnswerer(
	embedder port.Embedder,
	searcher port.Searcher,
	readiness port.Readiness,
	llm port.LLM,
	opts AnswerOptions,
	logger zerolog.Logger,
) *Answerer {
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.Fallback == "" {
		opts.Fallback = FallbackGenerate
	}
	return &Answerer{
		embedder:  embedder,
		searcher:  searcher,
		readiness: readiness,
		llm:       llm,
		opts:      opts,
		logger:    logger,
		grounded:  prompts.NewPromptTemplate(groundedTemplate, []string{"query", "context"}),
		fallback:  prompts.NewPromptTemplate(fallbackTemplate, []string{"query"}),
		now:       time.Now,
	}
}

type contextBlock struct {
	N      int
	Source string
	Text   string
}

// Answer answers query from the top k chunks. k <= 0 uses the configured
// default.
func (a *Answerer) Answer(ctx context.Context, query string, k int) (*domain.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	if !a.readiness.Ready() {
		return nil, domain.ErrIndexNotReady
	}
	if reply, ok := a.conversational(query); ok {
		return &domain.Answer{Text: reply, Query: query, RetrievedChunkIDs: []string{}, Timestamp: a.now()}, nil
	}
	if k <= 0 {
		k = a.opts.TopK
	}

	vector, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results := a.searcher.Search(vector, k)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}

	grounded := len(results) > 0 && results[0].Score >= a.opts.Threshold

	answer := &domain.Answer{
		Query:             query,
		RetrievedChunkIDs: ids,
		Grounded:          grounded,
		Timestamp:         a.now(),
	}
	if grounded {
		answer.Sources = results
	}

	ev := a.logger.Debug().Int("results", len(results)).Bool("grounded", grounded)
	if len(results) > 0 {
		ev = ev.Float64("best_score", results[0].Score)
	}
	ev.Msg("retrieved")

	switch {
	case grounded:
		answer.Text, err = a.generateGrounded(ctx, query, results)
	case a.useTemplate(query):
		answer.Text = a.opts.FallbackMessage
	default:
		answer.Text, err = a.generateFallback(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	answer.Text = strings.TrimSpace(answer.Text)
	return answer, nil
}

// conversational returns the canned reply for greetings and queries too
// short to retrieve on.
func (a *Answerer) conversational(query string) (string, bool) {
	cleaned := strings.ToLower(strings.NewReplacer("!", "", "?", "", ".", "", ",", "").Replace(query))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	for _, g := range a.opts.Greetings {
		if cleaned == strings.ToLower(g) {
			return a.opts.GreetingReply, true
		}
	}
	if a.opts.MinQueryLength > 0 && utf8.RuneCountInString(query) < a.opts.MinQueryLength {
		return a.opts.ShortQueryReply, true
	}
	return "", false
}

// useTemplate reports whether an ungrounded query gets the fixed reply
// instead of a generated one.
func (a *Answerer) useTemplate(query string) bool {
	switch a.opts.Fallback {
	case FallbackTemplate:
		return true
	case FallbackAuto:
		q := strings.ToLower(query)
		for _, kw := range a.opts.TemplateKeywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func (a *Answerer) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, a.embedTimeout())
	defer cancel()

	vecs, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", domain.ErrEmbeddingUnavailable)
	}
	return vecs[0], nil
}

func (a *Answerer) generateGrounded(ctx context.Context, query string, results []domain.ScoredChunk) (string, error) {
	blocks := make([]contextBlock, len(results))
	texts := make([]string, len(results))
	for i, r := range results {
		blocks[i] = contextBlock{N: i + 1, Source: sourceLabel(r.Chunk), Text: r.Chunk.Text}
		texts[i] = r.Chunk.Text
	}

	prompt, err := a.grounded.Format(map[string]any{"query": query, "context": blocks})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return a.generate(ctx, port.GenerateRequest{
		System:  a.opts.SystemPrompt,
		Prompt:  prompt,
		Query:   query,
		Context: texts,
	})
}

func (a *Answerer) generateFallback(ctx context.Context, query string) (string, error) {
	prompt, err := a.fallback.Format(map[string]any{"query": query})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return a.generate(ctx, port.GenerateRequest{
		System: a.opts.SystemPrompt,
		Prompt: prompt,
		Query:  query,
	})
}

func (a *Answerer) generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.generateTimeout())
	defer cancel()

	text, err := a.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}
	return text, nil
}

func (a *Answerer) embedTimeout() time.Duration {
	if a.opts.EmbedTimeout > 0 {
		return a.opts.EmbedTimeout
	}
	return 60 * time.Second
}

func (a *Answerer) generateTimeout() time.Duration {
	if a.opts.GenerateTimeout > 0 {
		return a.opts.GenerateTimeout
	}
	return 120 * time.Second
}

func sourceLabel(c domain.Chunk) string {
	label := c.SourcePath
	if c.Sheet != "" {
		label += " / " + c.Sheet
	}
	if c.Title != "" {
		label += " (" + c.Title + ")"
	}
	return label
}
