package store

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tabrag/internal/domain"
	"tabrag/internal/port"
)

// VectorIndex is the searchable embedding index. Readers work on an
// immutable snapshot; writers build a new snapshot under mu and publish it
// atomically, so a search never observes a partially replaced file.
type VectorIndex struct {
	store     port.IndexStore
	embedder  port.Embedder
	batchSize int
	logger    zerolog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	files   map[string]domain.SourceFile
	records map[string][]domain.EmbeddingRecord
	chunks  int
	dim     int
}

func NewVectorIndex(store port.IndexStore, embedder port.Embedder, batchSize int, logger zerolog.Logger) *VectorIndex {
	if batchSize <= 0 {
		batchSize = 32
	}
	idx := &VectorIndex{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
	idx.snap.Store(&snapshot{
		files:   map[string]domain.SourceFile{},
		records: map[string][]domain.EmbeddingRecord{},
	})
	return idx
}

// Load rebuilds the in-memory snapshot from the durable store.
func (idx *VectorIndex) Load() error {
	files, records, err := idx.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	next := &snapshot{
		files:   make(map[string]domain.SourceFile, len(files)),
		records: make(map[string][]domain.EmbeddingRecord, len(files)),
	}
	for _, f := range files {
		next.files[f.Path] = f
	}
	for _, rec := range records {
		if _, ok := next.files[rec.Chunk.SourcePath]; !ok {
			continue
		}
		next.records[rec.Chunk.SourcePath] = append(next.records[rec.Chunk.SourcePath], rec)
	}
	for path, recs := range next.records {
		sort.Slice(recs, func(i, j int) bool { return domain.ChunkLess(recs[i].Chunk, recs[j].Chunk) })
		next.records[path] = recs
	}
	next.recount()

	idx.mu.Lock()
	idx.snap.Store(next)
	idx.mu.Unlock()

	idx.logger.Debug().Int("files", len(next.files)).Int("chunks", next.chunks).Msg("index loaded")
	return nil
}

// Upsert embeds chunks and replaces everything indexed for file.Path with
// them. On embedding failure nothing changes.
func (idx *VectorIndex) Upsert(ctx context.Context, file domain.SourceFile, chunks []domain.Chunk) error {
	records := make([]domain.EmbeddingRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += idx.batchSize {
		end := min(start+idx.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vecs, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, file.Path, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("%w: %s: expected %d vectors, got %d", domain.ErrEmbeddingUnavailable, file.Path, len(texts), len(vecs))
		}
		for i, c := range chunks[start:end] {
			records = append(records, domain.EmbeddingRecord{Chunk: c, Vector: vecs[i]})
		}
	}
	sort.Slice(records, func(i, j int) bool { return domain.ChunkLess(records[i].Chunk, records[j].Chunk) })

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.store.ReplaceFile(file, records); err != nil {
		return fmt.Errorf("failed to store %s: %w", file.Path, err)
	}

	cur := idx.snap.Load()
	next := cur.clone()
	next.files[file.Path] = file
	if len(records) > 0 {
		next.records[file.Path] = records
	} else {
		delete(next.records, file.Path)
	}
	next.recount()
	idx.snap.Store(next)
	return nil
}

// Remove drops a file and all of its chunks from the index.
func (idx *VectorIndex) Remove(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.store.DeleteFile(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	cur := idx.snap.Load()
	if _, ok := cur.files[path]; !ok {
		return nil
	}
	next := cur.clone()
	delete(next.files, path)
	delete(next.records, path)
	next.recount()
	idx.snap.Store(next)
	return nil
}

// Search returns the k chunks most similar to query by cosine similarity.
// Equal scores are ordered by path, document index and offset.
func (idx *VectorIndex) Search(query []float32, k int) []domain.ScoredChunk {
	if k <= 0 || len(query) == 0 {
		return nil
	}

	snap := idx.snap.Load()
	scores := make([]domain.ScoredChunk, 0, snap.chunks)
	for _, recs := range snap.records {
		for _, rec := range recs {
			if len(rec.Vector) != len(query) {
				continue
			}
			scores = append(scores, domain.ScoredChunk{
				Chunk: rec.Chunk,
				Score: cosineSimilarity(query, rec.Vector),
			})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return domain.ChunkLess(scores[i].Chunk, scores[j].Chunk)
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k]
}

// Fingerprints returns the last indexed state of every known file.
func (idx *VectorIndex) Fingerprints() map[string]domain.SourceFile {
	return maps.Clone(idx.snap.Load().files)
}

// Chunks returns the indexed chunks of path in order.
func (idx *VectorIndex) Chunks(path string) []domain.Chunk {
	recs := idx.snap.Load().records[path]
	out := make([]domain.Chunk, len(recs))
	for i, rec := range recs {
		out[i] = rec.Chunk
	}
	return out
}

func (idx *VectorIndex) Stats() domain.Stats {
	snap := idx.snap.Load()
	return domain.Stats{
		TotalFiles:  len(snap.files),
		TotalChunks: snap.chunks,
		Dimension:   snap.dim,
	}
}

// Persist flushes the store and records the current stats.
func (idx *VectorIndex) Persist() error {
	stats := idx.Stats()
	stats.LastIngest = time.Now().UTC()
	if err := idx.store.UpdateStats(stats); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return idx.store.Sync()
}

func (idx *VectorIndex) Close() error {
	if err := idx.Persist(); err != nil {
		idx.store.Close()
		return err
	}
	return idx.store.Close()
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		files:   maps.Clone(s.files),
		records: maps.Clone(s.records),
		chunks:  s.chunks,
		dim:     s.dim,
	}
}

func (s *snapshot) recount() {
	s.chunks = 0
	s.dim = 0
	for _, recs := range s.records {
		s.chunks += len(recs)
		if s.dim == 0 && len(recs) > 0 {
			s.dim = len(recs[0].Vector)
		}
	}
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
