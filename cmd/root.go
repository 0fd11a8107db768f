// Package cmd provides the evapo CLI commands.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - index: build the embedding index from the documentation corpus
//   - ask: one-shot question from the terminal
//   - logs: inspect the conversation log
//
// Signal handling and graceful shutdown run via context cancellation.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evapo/evapo/internal/config"
	"github.com/evapo/evapo/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "evapo",
	Short: "Evapo - dehumidifier product assistant",
	Long: `Evapo answers questions about dehumidifier products, sizes rooms and
swimming pool halls, and recommends units from the catalog. It grounds
its answers in the indexed product documentation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and installs the configured logger as
// the process default.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
