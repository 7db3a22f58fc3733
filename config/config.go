package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tabrag/internal/domain"
)

// Config holds all configuration for tabrag.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus" toml:"corpus"`
	Index      IndexConfig      `yaml:"index" toml:"index"`
	Query      QueryConfig      `yaml:"query" toml:"query"`
	Embedding  EmbeddingConfig  `yaml:"embedding" toml:"embedding"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// CorpusConfig controls what the scanner picks up and how often.
type CorpusConfig struct {
	Root                string   `yaml:"root" toml:"root"`
	Formats             []string `yaml:"formats" toml:"formats"` // extensions, e.g. ".csv"
	Excludes            []string `yaml:"excludes" toml:"excludes"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	Watch               bool     `yaml:"watch" toml:"watch"`
}

// IndexConfig holds chunking and storage configuration.
type IndexConfig struct {
	Path         string `yaml:"path" toml:"path"` // empty means <root>/.rag/index.db
	ChunkWindow  int    `yaml:"chunk_window" toml:"chunk_window"`
	ChunkOverlap int    `yaml:"chunk_overlap" toml:"chunk_overlap"`
}

// QueryConfig holds retrieval and answer configuration.
type QueryConfig struct {
	TopK               int     `yaml:"top_k" toml:"top_k"`
	RelevanceThreshold float64 `yaml:"relevance_threshold" toml:"relevance_threshold"`
	Fallback           string  `yaml:"fallback" toml:"fallback"` // "auto", "generate" or "template"
	FallbackMessage    string  `yaml:"fallback_message" toml:"fallback_message"`
	SystemPrompt       string  `yaml:"system_prompt" toml:"system_prompt"`
	CacheSize          int     `yaml:"cache_size" toml:"cache_size"`
	CacheTTLSeconds    int     `yaml:"cache_ttl_seconds" toml:"cache_ttl_seconds"`

	// TemplateKeywords pick the fixed fallback_message over a generated
	// reply when fallback is "auto".
	TemplateKeywords []string `yaml:"template_keywords" toml:"template_keywords"`
	Greetings        []string `yaml:"greetings" toml:"greetings"`
	GreetingReply    string   `yaml:"greeting_reply" toml:"greeting_reply"`
	MinQueryLength   int      `yaml:"min_query_length" toml:"min_query_length"`
	ShortQueryReply  string   `yaml:"short_query_reply" toml:"short_query_reply"`
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"` // "ollama", "openai", "hash"
	Model             string  `yaml:"model" toml:"model"`
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Dimension         int     `yaml:"dimension" toml:"dimension"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"` // 0 = unlimited
}

// GenerationConfig holds generation backend configuration.
type GenerationConfig struct {
	Provider       string  `yaml:"provider" toml:"provider"` // "ollama", "openai", "extractive"
	Model          string  `yaml:"model" toml:"model"`
	BaseURL        string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env" toml:"api_key_env"`
	Temperature    float64 `yaml:"temperature" toml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "console" or "json"
}

const defaultSystemPrompt = `You are a helpful assistant that answers questions using the data files you were given.
Answer briefly and use the exact names and numbers from the context.
If the context does not contain the answer, say that you do not have that information.`

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Formats:             []string{".csv", ".xls", ".xlsx", ".jsonl", ".txt"},
			Excludes:            []string{"**/.rag/**", "**/.git/**", "**/~$*"},
			PollIntervalSeconds: 5,
			Watch:               false,
		},
		Index: IndexConfig{
			ChunkWindow:  512,
			ChunkOverlap: 64,
		},
		Query: QueryConfig{
			TopK:               2,
			RelevanceThreshold: 0.15,
			Fallback:           "auto",
			FallbackMessage:    "I don't have information about that in the indexed data.",
			SystemPrompt:       defaultSystemPrompt,
			CacheSize:          256,
			CacheTTLSeconds:    600,
			TemplateKeywords: []string{
				"order", "menu", "item", "price", "cost", "sale", "stock", "quantity",
				"forecast", "demand", "popular", "best-seller", "trend", "predict",
				"availability", "week",
			},
			Greetings: []string{
				"hi", "hii", "hey", "hello", "hello there", "hi there", "hey there", "howdy",
				"good morning", "good afternoon", "good evening",
			},
			GreetingReply:   "Hello! How can I help you today? Ask me anything about the indexed data.",
			MinQueryLength:  3,
			ShortQueryReply: "Could you please ask me something more specific?",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			BaseURL:        "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			Dimension:      768,
			BatchSize:      32,
			TimeoutSeconds: 60,
		},
		Generation: GenerationConfig{
			Provider:       "ollama",
			Model:          "tinyllama",
			BaseURL:        "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			Temperature:    0.1,
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:11435",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML or TOML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (tabrag.yaml, tabrag.toml
// or .rag/config.yaml, first match wins).
func LoadFromDir(dir string) (*Config, error) {
	candidates := []string{
		filepath.Join(dir, "tabrag.yaml"),
		filepath.Join(dir, "tabrag.toml"),
		filepath.Join(dir, ".rag", "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return DefaultConfig(), nil
}

// normalize lower-cases extensions and adds the leading dot.
func (c *Config) normalize() {
	for i, f := range c.Corpus.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		c.Corpus.Formats[i] = f
	}
}

// Validate reports configuration that cannot work.
// Chunk settings fail with domain.ErrInvalidChunkConfig.
func (c *Config) Validate() error {
	if c.Index.ChunkWindow <= 0 || c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkWindow {
		return fmt.Errorf("%w: window=%d overlap=%d", domain.ErrInvalidChunkConfig, c.Index.ChunkWindow, c.Index.ChunkOverlap)
	}

	var errs []error
	if len(c.Corpus.Formats) == 0 {
		errs = append(errs, errors.New("corpus.formats must not be empty"))
	}
	if c.Corpus.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("corpus.poll_interval_seconds must be positive, got %d", c.Corpus.PollIntervalSeconds))
	}
	if c.Query.TopK <= 0 {
		errs = append(errs, fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK))
	}
	if c.Query.RelevanceThreshold < -1 || c.Query.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("query.relevance_threshold must be within [-1, 1], got %v", c.Query.RelevanceThreshold))
	}
	switch c.Query.Fallback {
	case "auto", "generate", "template":
	default:
		errs = append(errs, fmt.Errorf("query.fallback must be auto, generate or template, got %q", c.Query.Fallback))
	}
	if c.Query.MinQueryLength < 0 {
		errs = append(errs, fmt.Errorf("query.min_query_length must not be negative, got %d", c.Query.MinQueryLength))
	}
	return errors.Join(errs...)
}

// PollInterval returns the scan interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Corpus.PollIntervalSeconds) * time.Second
}

func (c *EmbeddingConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 60)
}

func (c *GenerationConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 120)
}

func (c *QueryConfig) CacheTTL() time.Duration {
	return seconds(c.CacheTTLSeconds, 600)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// ResolveIndexPath returns the index database path for a corpus root.
func (c *Config) ResolveIndexPath(root string) string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return IndexDBPath(root)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".rag", "index.db")
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	ragDir := filepath.Join(dir, ".rag")
	return os.MkdirAll(ragDir, 0755)
}
