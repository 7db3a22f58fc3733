package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"tabrag/internal/adapter/analyzer"
)

// HashEmbedder is an offline embedder: a bag of normalized terms folded into
// a fixed number of buckets and L2-normalized. Texts that share terms get a
// positive cosine similarity; texts that share none score zero.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int, tokenizer *analyzer.Tokenizer) *HashEmbedder {
	if dimension <= 0 {
		dimension = 512
	}
	return &HashEmbedder{dimension: dimension, tokenizer: tokenizer}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dimension)
	for _, term := range e.tokenizer.Terms(text) {
		h := fnv.New32a()
		h.Write([]byte(fold(term)))
		v[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// fold strips a plural "s" so "items" and "item" share a bucket.
func fold(term string) string {
	if len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
		return term[:len(term)-1]
	}
	return term
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return "hash"
}
