package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tabrag/internal/adapter/fs"
	"tabrag/internal/api"
	"tabrag/internal/logging"
)

var (
	serveAddr     string
	serveInMemory bool
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the index in sync and serve queries over HTTP",
	Long: `Start the ingestion loop for the corpus directory and serve the query API.

Endpoints:
  POST /rag_query   {"query": "..."} -> {"answer", "query", "timestamp", "grounded", "sources"}
  GET  /health      200 once the first ingestion pass completed, 503 before

Examples:
  tabrag serve
  tabrag serve -d ./data --addr :11435 --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "keep the index in memory only")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also react to file system events")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := openApp(cfg, root, serveInMemory)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close index")
		}
	}()

	answerer, err := a.answerer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- a.ingester.Run(ctx) }()

	if serveWatch || cfg.Corpus.Watch {
		w := fs.NewWatcher(a.walker, 500*time.Millisecond, logging.Component("watch"))
		go func() {
			if err := w.Run(ctx, root, a.ingester.Trigger); err != nil {
				log.Warn().Err(err).Msg("file watcher stopped, relying on polling")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(answerer, a.ingester, logging.Component("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("root", root).
			Dur("poll", cfg.PollInterval()).
			Msg("serving")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-ingestDone
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info().Int("cached_queries", a.queryCache.Size()).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	a.ingester.Stop()
	<-ingestDone
	return nil
}
