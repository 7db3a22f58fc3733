package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask a question about the indexed data",
	Long: `Bring the index up to date, retrieve the most relevant chunks and answer the
question with the configured generation backend.

Examples:
  tabrag query -q "what are the top items"
  tabrag query -q "stock of item B" --top-k 4 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

type queryOutput struct {
	Answer   string         `json:"answer"`
	Query    string         `json:"query"`
	Grounded bool           `json:"grounded"`
	Chunks   []string       `json:"retrieved_chunk_ids"`
	Sources  []sourceOutput `json:"sources"`
}

type sourceOutput struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	a, err := openApp(cfg, root, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// Readiness is per process, so sync once before answering.
	if _, err := a.ingester.RunOnce(cmd.Context(), nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	answerer, err := a.answerer()
	if err != nil {
		return err
	}

	ans, err := answerer.Answer(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		out := queryOutput{
			Answer:   ans.Text,
			Query:    ans.Query,
			Grounded: ans.Grounded,
			Chunks:   ans.RetrievedChunkIDs,
			Sources:  make([]sourceOutput, 0, len(ans.Sources)),
		}
		for _, s := range ans.Sources {
			out.Sources = append(out.Sources, sourceOutput{ID: s.Chunk.ID, Score: s.Score, Text: s.Chunk.Text})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(ans.Text)
	if !ans.Grounded {
		fmt.Println("\n(no indexed data matched this question)")
		return nil
	}
	fmt.Println()
	for i, s := range ans.Sources {
		fmt.Printf("[%d] %s (score: %.2f)\n    %s\n", i+1, s.Chunk.ID, s.Score, preview(s.Chunk.Text, 200))
	}
	return nil
}

// preview shortens text to at most n runes.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
