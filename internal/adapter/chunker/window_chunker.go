package chunker

import (
	"fmt"
	"strings"

	"tabrag/internal/adapter/analyzer"
	"tabrag/internal/domain"
)

// WindowChunker splits documents into fixed-size token windows that overlap
// their neighbour by a fixed number of tokens.
type WindowChunker struct {
	window    int
	overlap   int
	tokenizer *analyzer.Tokenizer
}

// NewWindowChunker validates the window configuration.
// overlap must be >= 0 and < window.
func NewWindowChunker(window, overlap int, tokenizer *analyzer.Tokenizer) (*WindowChunker, error) {
	if window <= 0 || overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("%w: window=%d overlap=%d", domain.ErrInvalidChunkConfig, window, overlap)
	}
	return &WindowChunker{
		window:    window,
		overlap:   overlap,
		tokenizer: tokenizer,
	}, nil
}

func (c *WindowChunker) Chunk(doc domain.Document) []domain.Chunk {
	tokens := c.tokenizer.Split(doc.Text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.window - c.overlap
	chunks := make([]domain.Chunk, 0, len(tokens)/step+1)

	for start := 0; ; start += step {
		end := start + c.window
		if end > len(tokens) {
			end = len(tokens)
		}

		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.SourcePath, doc.Index, start),
			SourcePath: doc.SourcePath,
			DocIndex:   doc.Index,
			Offset:     start,
			Title:      doc.Title,
			Sheet:      doc.Sheet,
			Text:       strings.Join(tokens[start:end], " "),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

// ChunkAll chunks documents in order.
func (c *WindowChunker) ChunkAll(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Chunk(doc)...)
	}
	return chunks
}
