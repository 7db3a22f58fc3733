package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"tabrag/config"
	"tabrag/internal/adapter/analyzer"
	"tabrag/internal/adapter/cache"
	"tabrag/internal/adapter/chunker"
	"tabrag/internal/adapter/embedding"
	"tabrag/internal/adapter/extract"
	"tabrag/internal/adapter/fs"
	"tabrag/internal/adapter/llm"
	"tabrag/internal/adapter/memstore"
	"tabrag/internal/adapter/store"
	"tabrag/internal/logging"
	"tabrag/internal/port"
	"tabrag/internal/usecase"
)

// app holds the components shared by serve, index and query.
type app struct {
	cfg      *config.Config
	root     string
	dbPath   string
	walker   *fs.Walker
	embedder port.Embedder // query side, behind queryCache
	index    *store.VectorIndex
	ingester *usecase.Ingester

	queryCache *cache.EmbeddingCache
}

// openApp wires the index for root. With inMemory the index lives only in
// this process.
func openApp(cfg *config.Config, root string, inMemory bool) (*app, error) {
	tokenizer := analyzer.NewTokenizer()

	chk, err := chunker.NewWindowChunker(cfg.Index.ChunkWindow, cfg.Index.ChunkOverlap, tokenizer)
	if err != nil {
		return nil, err
	}

	registry := extract.NewRegistry()
	if err := checkFormats(cfg.Corpus.Formats, registry.Formats()); err != nil {
		return nil, err
	}

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	// Only queries go through the cache; ingestion batches would evict them.
	a := &app{
		cfg:        cfg,
		root:       root,
		queryCache: cache.NewEmbeddingCache(cfg.Query.CacheSize, cfg.Query.CacheTTL()),
	}
	a.embedder = cache.NewCachedEmbedder(emb, a.queryCache)

	var st port.IndexStore
	if inMemory {
		st = memstore.NewMemoryStore()
	} else {
		a.dbPath = cfg.ResolveIndexPath(root)
		if cfg.Index.Path == "" {
			if err := config.EnsureRAGDir(root); err != nil {
				return nil, fmt.Errorf("failed to create .rag directory: %w", err)
			}
		}
		bs, err := store.NewBoltStore(a.dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open index store: %w", err)
		}
		reason, err := bs.Prepare(cfg)
		if err != nil {
			bs.Close()
			return nil, fmt.Errorf("failed to prepare index store: %w", err)
		}
		if reason != "" {
			log.Warn().Str("reason", reason).Msg("index cleared, rebuilding")
		}
		st = bs
	}

	a.index = store.NewVectorIndex(st, emb, cfg.Embedding.BatchSize, logging.Component("index"))
	if err := a.index.Load(); err != nil {
		st.Close()
		return nil, err
	}

	a.walker = fs.NewWalker(cfg.Corpus.Formats, cfg.Corpus.Excludes)
	a.ingester = usecase.NewIngester(
		root,
		a.walker,
		registry,
		chk,
		a.index,
		cfg.PollInterval(),
		logging.Component("ingest"),
	)
	return a, nil
}

// answerer builds the query pipeline on top of the app's index.
func (a *app) answerer() (*usecase.Answerer, error) {
	gen, err := llm.New(a.cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation backend: %w", err)
	}
	return usecase.NewAnswerer(
		a.embedder,
		a.index,
		a.ingester,
		gen,
		usecase.OptionsFromConfig(a.cfg),
		logging.Component("query"),
	), nil
}

// checkFormats rejects configured extensions that have no extractor.
func checkFormats(configured, supported []string) error {
	var unknown []string
	for _, ext := range configured {
		if !slices.Contains(supported, ext) {
			unknown = append(unknown, ext)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unsupported corpus formats %v (supported: %s)", unknown, strings.Join(supported, " "))
	}
	return nil
}

func (a *app) Close() error {
	return a.index.Close()
}
