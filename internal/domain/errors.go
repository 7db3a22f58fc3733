package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery indicates an empty or whitespace-only query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexNotReady indicates no ingestion pass has completed yet.
	// Callers should retry later.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrEmbeddingUnavailable indicates the embedding backend failed or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationUnavailable indicates the generation backend failed or timed out.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	// ErrExtractionFailed indicates a source file could not be opened or decoded.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrInvalidChunkConfig indicates a chunk window/overlap combination that cannot work.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")

	// ErrCorpusUnavailable indicates the corpus root cannot be read.
	ErrCorpusUnavailable = errors.New("corpus unavailable")
)

// ExtractionError carries the path of the file that failed to extract.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
