package port

import (
	"context"

	"tabrag/internal/domain"
)

// Searcher finds the chunks nearest to a query vector.
type Searcher interface {
	Search(query []float32, k int) []domain.ScoredChunk
}

// Readiness reports whether the first ingestion pass has completed.
type Readiness interface {
	Ready() bool
}

// Index is the mutable side of the embedding index used by ingestion.
type Index interface {
	Searcher

	// Upsert replaces everything indexed for file.Path with chunks.
	Upsert(ctx context.Context, file domain.SourceFile, chunks []domain.Chunk) error

	Remove(path string) error

	// Fingerprints returns the last indexed state of every known file.
	Fingerprints() map[string]domain.SourceFile

	Persist() error
}
