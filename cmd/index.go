package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evapo/evapo/internal/app"
	"github.com/evapo/evapo/internal/chunk"
	"github.com/evapo/evapo/internal/ingest"
)

var (
	indexDocsDir string
	indexOutPath string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the embedding index from the documentation corpus",
	Long: `Index splits every markdown and text file under the docs directory
into chunks, embeds each chunk, and writes an index snapshot. A running
server picks the new snapshot up via POST /api/index/reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex()
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexDocsDir, "docs", "", "documentation directory (overrides config)")
	indexCmd.Flags().StringVar(&indexOutPath, "out", "", "index snapshot path (overrides config)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	docsDir := cfg.DocsDir
	if indexDocsDir != "" {
		docsDir = indexDocsDir
	}
	outPath := cfg.IndexPath
	if indexOutPath != "" {
		outPath = indexOutPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := a.Close(closeCtx); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	pipeline := ingest.New(splitter, a.Embedder, cfg.EmbedderModel, logger)
	result, err := pipeline.Run(ctx, docsDir, outPath)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	fmt.Printf("Indexed %d files (%d skipped) into %d chunks in %s\n",
		result.FilesIndexed, result.FilesSkipped, result.Chunks,
		result.Duration.Round(time.Millisecond))
	fmt.Printf("Snapshot written to %s\n", outPath)
	return nil
}
