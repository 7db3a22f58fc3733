package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Run one ingestion pass",
	Long: `Scan the corpus directory, embed new and changed files, and drop files that
were deleted. The index is stored in .rag/index.db within the corpus directory.

Examples:
  tabrag index .              # Index current directory
  tabrag index /path/to/data  # Index a specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	a, err := openApp(cfg, path, false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Scanning %s...\n", path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progressCallback := func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := a.ingester.RunOnce(context.Background(), progressCallback)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	stats := a.index.Stats()
	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files added:     %d\n", result.Added)
	fmt.Printf("  Files modified:  %d\n", result.Modified)
	fmt.Printf("  Files removed:   %d\n", result.Removed)
	fmt.Printf("  Files unchanged: %d\n", result.Unchanged)
	fmt.Printf("  Chunks embedded: %d\n", result.Chunks)
	if result.Failed > 0 {
		fmt.Printf("  Failed:          %d (skipped until they change)\n", result.Failed)
	}
	if result.Deferred > 0 {
		fmt.Printf("  Deferred:        %d (embedding backend unavailable)\n", result.Deferred)
	}
	if result.Skipped > 0 {
		fmt.Printf("  Bad records:     %d (skipped)\n", result.Skipped)
	}
	fmt.Printf("  Index total:     %d files, %d chunks\n", stats.TotalFiles, stats.TotalChunks)
	fmt.Printf("  Took:            %s\n", formatDuration(result.Duration))

	fmt.Printf("\nIndex stored at: %s\n", a.dbPath)
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
