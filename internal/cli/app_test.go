package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabrag/config"
)

func offlineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Model = "hash"
	cfg.Embedding.Dimension = 1 << 12
	cfg.Generation.Provider = "extractive"
	return cfg
}

func TestOpenAppIndexesAndAnswers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sales.csv"), []byte("Item,Quantity\nItem A,150\nItem B,120\n"), 0644))

	cfg := offlineConfig()
	a, err := openApp(cfg, root, false)
	require.NoError(t, err)

	_, err = a.ingester.RunOnce(context.Background(), nil)
	require.NoError(t, err)

	ans, err := a.answerer()
	require.NoError(t, err)
	res, err := ans.Answer(context.Background(), "top items", 0)
	require.NoError(t, err)
	assert.True(t, res.Grounded)
	assert.Len(t, res.RetrievedChunkIDs, 2)
	require.NoError(t, a.Close())

	// The persisted index is picked up by the next process.
	a, err = openApp(cfg, root, false)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 2, a.index.Stats().TotalChunks)
	assert.FileExists(t, filepath.Join(root, ".rag", "index.db"))
}

func TestOpenAppRebuildsOnModelChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("stock is counted weekly"), 0644))

	cfg := offlineConfig()
	a, err := openApp(cfg, root, false)
	require.NoError(t, err)
	_, err = a.ingester.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.Embedding.Dimension = 256
	a, err = openApp(cfg, root, false)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 0, a.index.Stats().TotalFiles)
}

func TestOpenAppRejectsBadChunkConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.Index.ChunkOverlap = cfg.Index.ChunkWindow
	_, err := openApp(cfg, t.TempDir(), true)
	assert.Error(t, err)
}

func TestOpenAppKeepsIngestionOutOfQueryCache(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("stock is counted weekly"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("orders ship on friday"), 0644))

	a, err := openApp(offlineConfig(), root, true)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.ingester.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, a.queryCache.Size(), "single-chunk files are embedded uncached")

	ans, err := a.answerer()
	require.NoError(t, err)
	_, err = ans.Answer(context.Background(), "when do orders ship", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, a.queryCache.Size())
}

func TestOpenAppRejectsUnsupportedFormats(t *testing.T) {
	cfg := offlineConfig()
	cfg.Corpus.Formats = []string{".csv", ".parquet"}
	_, err := openApp(cfg, t.TempDir(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".parquet")
}

func TestPreviewCutsOnRunes(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "Crème...", preview("Crème brûlée", 5))
	assert.True(t, utf8.ValidString(preview(strings.Repeat("é", 300), 200)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}
