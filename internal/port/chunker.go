package port

import "tabrag/internal/domain"

type Chunker interface {
	Chunk(doc domain.Document) []domain.Chunk

	// ChunkAll chunks the documents of one file in order.
	ChunkAll(docs []domain.Document) []domain.Chunk
}
