package port

import "tabrag/internal/domain"

// IndexStore is the durable side of the embedding index.
// ReplaceFile and DeleteFile must be atomic per path.
type IndexStore interface {
	ReplaceFile(file domain.SourceFile, records []domain.EmbeddingRecord) error

	DeleteFile(path string) error

	// Load returns every known file fingerprint and every stored record.
	Load() ([]domain.SourceFile, []domain.EmbeddingRecord, error)

	GetStats() (domain.Stats, error)

	UpdateStats(stats domain.Stats) error

	Sync() error

	Close() error
}
