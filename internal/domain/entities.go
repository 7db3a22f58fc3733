package domain

import (
	"fmt"
	"time"
)

// SourceFile is a corpus file as seen by the scanner.
// Path is slash-separated and relative to the corpus root; it is the file's identity.
type SourceFile struct {
	Path    string `json:"path"`
	AbsPath string `json:"abs_path"`
	Ext     string `json:"ext"`
	ModTime int64  `json:"mod_time"`
	Size    int64  `json:"size"`
}

// Fingerprint is the cheap change signal used for diffing.
type Fingerprint struct {
	ModTime int64
	Size    int64
}

func (f SourceFile) Fingerprint() Fingerprint {
	return Fingerprint{ModTime: f.ModTime, Size: f.Size}
}

// Document is extracted text plus where it came from.
// Index is the row, line or page position inside the source file.
type Document struct {
	SourcePath string
	Index      int
	Title      string
	Sheet      string
	Text       string
}

// Extraction is the result of extracting one source file.
// Skipped counts rows or lines that could not be parsed.
type Extraction struct {
	Documents []Document
	Skipped   int
}

type Chunk struct {
	ID         string `json:"id"`
	SourcePath string `json:"path"`
	DocIndex   int    `json:"doc"`
	Offset     int    `json:"offset"`
	Title      string `json:"title,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
	Text       string `json:"text"`
}

// ChunkID builds the stable id of a chunk. Ids are scoped per source path.
func ChunkID(path string, docIndex, offset int) string {
	return fmt.Sprintf("%s#%d:%d", path, docIndex, offset)
}

// ChunkLess orders chunks by path, then document index, then token offset.
func ChunkLess(a, b Chunk) bool {
	if a.SourcePath != b.SourcePath {
		return a.SourcePath < b.SourcePath
	}
	if a.DocIndex != b.DocIndex {
		return a.DocIndex < b.DocIndex
	}
	return a.Offset < b.Offset
}

// EmbeddingRecord is a chunk with its current vector.
type EmbeddingRecord struct {
	Chunk  Chunk
	Vector []float32
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Answer is the outcome of a query. Grounded reports whether the retrieved
// chunks were used as generation context.
type Answer struct {
	Text              string
	Query             string
	RetrievedChunkIDs []string
	Sources           []ScoredChunk
	Grounded          bool
	Timestamp         time.Time
}

type Stats struct {
	TotalFiles  int       `json:"total_files"`
	TotalChunks int       `json:"total_chunks"`
	Dimension   int       `json:"dimension"`
	LastIngest  time.Time `json:"last_ingest"`
}
