package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tabrag/config"
	"tabrag/internal/logging"
)

var (
	cfgFile   string
	cfg       *config.Config
	rootDir   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tabrag",
	Short: "Question answering over a folder of spreadsheets and data files",
	Long: `tabrag watches a folder of CSV, Excel, JSONL and text files, keeps an
embedding index of their rows up to date, and answers questions grounded on
the most relevant rows.

Example usage:
  tabrag serve                       # Index ./ and serve POST /rag_query
  tabrag index ./data                # Run one ingestion pass
  tabrag query -q "top items"        # Ask a question from the terminal
  tabrag status                      # Show index statistics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		var err error
		dirFlag := rootDir
		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if dirFlag == "" && cfg.Corpus.Root != "" {
			rootDir = cfg.Corpus.Root
		}
		if rootDir, err = filepath.Abs(rootDir); err != nil {
			return fmt.Errorf("invalid root directory: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log.Debug().Str("root", rootDir).Msg("configuration loaded")
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tabrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "corpus root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
