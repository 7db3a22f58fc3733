package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tabrag/internal/domain"
	"tabrag/internal/port"
)

// State is the phase the ingester is currently in.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDiffing
	StateEmbedding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StateEmbedding:
		return "embedding"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ProgressFunc is called after each file of a cycle is handled.
type ProgressFunc func(processed, total int, path string)

// Plan is the outcome of comparing the corpus with the index.
type Plan struct {
	Added     []domain.SourceFile
	Modified  []domain.SourceFile
	Removed   []string
	Unchanged []domain.SourceFile
}

// Diff classifies the scanned files against the last indexed fingerprints.
func Diff(current []domain.SourceFile, known map[string]domain.SourceFile) Plan {
	var plan Plan
	seen := make(map[string]struct{}, len(current))
	for _, f := range current {
		seen[f.Path] = struct{}{}
		prev, ok := known[f.Path]
		switch {
		case !ok:
			plan.Added = append(plan.Added, f)
		case prev.Fingerprint() != f.Fingerprint():
			plan.Modified = append(plan.Modified, f)
		default:
			plan.Unchanged = append(plan.Unchanged, f)
		}
	}
	for path := range known {
		if _, ok := seen[path]; !ok {
			plan.Removed = append(plan.Removed, path)
		}
	}
	sort.Strings(plan.Removed)
	return plan
}

// IngestResult summarizes one ingestion cycle.
type IngestResult struct {
	CycleID   string
	Added     int
	Modified  int
	Removed   int
	Unchanged int
	Failed    int // extraction failures, retried only once the file changes
	Deferred  int // embedding failures, retried next cycle
	Chunks    int
	Skipped   int // unparseable rows or lines
	Duration  time.Duration
}

// Changed reports whether the cycle mutated the index.
func (r *IngestResult) Changed() bool {
	return r.Added+r.Modified+r.Removed > 0
}

// Ingester keeps the index in sync with the corpus directory.
type Ingester struct {
	root      string
	scanner   port.Scanner
	extractor port.Extractor
	chunker   port.Chunker
	index     port.Index
	interval  time.Duration
	logger    zerolog.Logger

	cycleMu sync.Mutex
	failed  map[string]domain.Fingerprint

	state atomic.Int32
	ready atomic.Bool

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewIngester(
	root string,
	scanner port.Scanner,
	extractor port.Extractor,
	chunker port.Chunker,
	index port.Index,
	interval time.Duration,
	logger zerolog.Logger,
) *Ingester {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Ingester{
		root:      root,
		scanner:   scanner,
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		interval:  interval,
		logger:    logger,
		failed:    make(map[string]domain.Fingerprint),
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// Ready reports whether a cycle has completed since the process started
// without leaving any new file waiting for embeddings.
func (g *Ingester) Ready() bool {
	return g.ready.Load()
}

func (g *Ingester) State() State {
	return State(g.state.Load())
}

// Trigger asks the running loop for an early cycle. It never blocks.
func (g *Ingester) Trigger() {
	select {
	case g.trigger <- struct{}{}:
	default:
	}
}

// Stop ends Run after the current cycle.
func (g *Ingester) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Run runs a cycle immediately and then on every tick or trigger until ctx
// is cancelled or Stop is called.
func (g *Ingester) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if _, err := g.RunOnce(ctx, nil); err != nil && ctx.Err() == nil {
			g.logger.Error().Err(err).Msg("ingestion cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-g.stop:
			return nil
		case <-ticker.C:
		case <-g.trigger:
		}
	}
}

// RunOnce performs one full scan, diff and embed cycle.
func (g *Ingester) RunOnce(ctx context.Context, progress ProgressFunc) (*IngestResult, error) {
	g.cycleMu.Lock()
	defer g.cycleMu.Unlock()
	defer g.setState(StateIdle)

	start := time.Now()
	result := &IngestResult{CycleID: uuid.NewString()}
	logger := g.logger.With().Str("cycle", result.CycleID).Logger()

	g.setState(StateScanning)
	files, err := g.scanner.Scan(g.root)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	g.setState(StateDiffing)
	plan := Diff(files, g.index.Fingerprints())
	result.Unchanged = len(plan.Unchanged)
	g.forgetFailures(files)

	g.setState(StateEmbedding)
	total := len(plan.Added) + len(plan.Modified) + len(plan.Removed)
	processed := 0
	step := func(path string) {
		processed++
		if progress != nil {
			progress(processed, total, path)
		}
	}

	for _, path := range plan.Removed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.index.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		result.Removed++
		logger.Debug().Str("path", path).Msg("removed")
		step(path)
	}

	// New files that could not be embedded leave the index incomplete.
	pending := 0
	for _, file := range plan.Added {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deferred := result.Deferred
		n, err := g.ingestFile(ctx, file, result, logger)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			result.Added++
			result.Chunks += n
		} else if result.Deferred > deferred {
			pending++
		}
		step(file.Path)
	}

	for _, file := range plan.Modified {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := g.ingestFile(ctx, file, result, logger)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			result.Modified++
			result.Chunks += n
		}
		step(file.Path)
	}

	if result.Changed() {
		if err := g.index.Persist(); err != nil {
			return nil, fmt.Errorf("failed to persist index: %w", err)
		}
	}

	result.Duration = time.Since(start)
	if pending > 0 {
		if !g.ready.Load() {
			logger.Warn().Int("pending", pending).Msg("index not ready, new files are waiting for embeddings")
		}
	} else if !g.ready.Swap(true) {
		logger.Info().Msg("index ready")
	}

	ev := logger.Debug()
	if result.Changed() || result.Failed > 0 || result.Deferred > 0 {
		ev = logger.Info()
	}
	ev.Int("added", result.Added).
		Int("modified", result.Modified).
		Int("removed", result.Removed).
		Int("unchanged", result.Unchanged).
		Int("failed", result.Failed).
		Int("deferred", result.Deferred).
		Int("chunks", result.Chunks).
		Dur("took", result.Duration).
		Msg("ingestion cycle complete")

	return result, nil
}

// ingestFile returns the number of chunks indexed for file, or -1 when the
// file was skipped. Only store failures abort the cycle.
func (g *Ingester) ingestFile(ctx context.Context, file domain.SourceFile, result *IngestResult, logger zerolog.Logger) (int, error) {
	if fp, ok := g.failed[file.Path]; ok && fp == file.Fingerprint() {
		return -1, nil
	}

	ext, err := g.extractor.Extract(file)
	if err != nil {
		g.failed[file.Path] = file.Fingerprint()
		result.Failed++
		logger.Warn().Err(err).Str("path", file.Path).Msg("extraction failed, skipping file until it changes")
		return -1, nil
	}
	if ext.Skipped > 0 {
		result.Skipped += ext.Skipped
		logger.Warn().Str("path", file.Path).Int("skipped", ext.Skipped).Msg("skipped unparseable records")
	}

	chunks := g.chunker.ChunkAll(ext.Documents)

	if err := g.index.Upsert(ctx, file, chunks); err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			result.Deferred++
			logger.Warn().Err(err).Str("path", file.Path).Msg("embedding failed, deferring file")
			return -1, nil
		}
		return -1, err
	}

	logger.Debug().Str("path", file.Path).Int("documents", len(ext.Documents)).Int("chunks", len(chunks)).Msg("indexed")
	return len(chunks), nil
}

// forgetFailures drops remembered failures for files that are gone.
func (g *Ingester) forgetFailures(files []domain.SourceFile) {
	if len(g.failed) == 0 {
		return
	}
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
	}
	for path := range g.failed {
		if _, ok := present[path]; !ok {
			delete(g.failed, path)
		}
	}
}

func (g *Ingester) setState(s State) {
	g.state.Store(int32(s))
}
