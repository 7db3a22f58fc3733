package port

import "tabrag/internal/domain"

// Scanner lists ingestible files under a root directory.
type Scanner interface {
	Scan(root string) ([]domain.SourceFile, error)
}

// Extractor turns a source file into documents.
type Extractor interface {
	Extract(file domain.SourceFile) (domain.Extraction, error)
}
