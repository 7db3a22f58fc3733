package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tabrag/internal/adapter/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dbPath := cfg.ResolveIndexPath(GetRootDir())

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Run 'tabrag index' first", dbPath)
	}

	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index (is 'tabrag serve' running?): %w", err)
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	migration, err := st.CheckMigration(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Index:        %s\n", dbPath)
	fmt.Printf("Schema:       v%d\n", migration.OldVersion)
	fmt.Printf("Files:        %d\n", stats.TotalFiles)
	fmt.Printf("Chunks:       %d\n", stats.TotalChunks)
	fmt.Printf("Dimension:    %d\n", stats.Dimension)
	if !stats.LastIngest.IsZero() {
		fmt.Printf("Last ingest:  %s\n", stats.LastIngest.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Embedding:    %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	if migration.NeedsRebuild {
		fmt.Printf("\nThe index will be rebuilt on next run: %s\n", migration.Reason)
	}
	return nil
}
