package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCacheGetPut(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)

	_, ok := c.Get("m", "top items")
	assert.False(t, ok)

	c.Put("m", "top items", []float32{1, 0})
	vec, ok := c.Get("m", "top items")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, vec)

	_, ok = c.Get("other-model", "top items")
	assert.False(t, ok, "keys are scoped by model")
}

func TestEmbeddingCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewEmbeddingCache(2, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Put("m", "b", []float32{2})

	_, ok := c.Get("m", "a")
	require.True(t, ok)

	c.Put("m", "c", []float32{3})
	assert.Equal(t, 2, c.Size())

	_, ok = c.Get("m", "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("m", "a")
	assert.True(t, ok)
}

func TestEmbeddingCacheTTL(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	c.Put("m", "q", []float32{1})
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("m", "q")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestEmbeddingCacheConcurrentGetPutStaysBounded(t *testing.T) {
	c := NewEmbeddingCache(4, time.Minute)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q := strconv.Itoa((w + i) % 12)
				if _, ok := c.Get("m", q); !ok {
					c.Put("m", q, []float32{float32(i)})
				}
			}
		}(w)
	}
	wg.Wait()

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.LessOrEqual(t, len(c.entries), 4)
	assert.Len(t, c.order, len(c.entries), "order tracks exactly the live entries")
}

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 1 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute))
	ctx := context.Background()

	_, err := e.Embed(ctx, []string{"hello"})
	require.NoError(t, err)
	vecs, err := e.Embed(ctx, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5}}, vecs)
	assert.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "batches bypass the cache")
	assert.Equal(t, "counting", e.ModelName())
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	e := NewCachedEmbedder(inner, NewEmbeddingCache(10, time.Minute))

	_, err := e.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	_, err = e.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
