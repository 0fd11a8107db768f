package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evapo/evapo/internal/convlog"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the conversation log",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversation entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogsList(cmd.Context())
	},
}

var logsSessionCmd = &cobra.Command{
	Use:   "session <session-id>",
	Short: "Show the conversation log for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogsSession(cmd.Context(), args[0])
	},
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete all log entries for one session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogsDelete(cmd.Context(), args[0])
	},
	Args: cobra.ExactArgs(1),
}

func init() {
	logsListCmd.Flags().IntVar(&logsLimit, "limit", 20, "maximum entries to show")
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsSessionCmd)
	logsCmd.AddCommand(logsDeleteCmd)
	rootCmd.AddCommand(logsCmd)
}

// openSink opens the conversation log directly; the model provider is
// not needed for log inspection.
func openSink() (*convlog.Sink, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	sink, err := convlog.Open(cfg.ConvLogPath)
	if err != nil {
		return nil, fmt.Errorf("opening conversation log: %w", err)
	}
	return sink, nil
}

func runLogsList(ctx context.Context) error {
	sink, err := openSink()
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	entries, err := sink.List(ctx, logsLimit, 0)
	if err != nil {
		return fmt.Errorf("listing conversation log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No conversation entries.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("[%s] session %s (%s)\n", formatTime(e.CreatedAt), e.SessionID, e.SourceIP)
		fmt.Printf("  You>   %s\n", truncateLine(e.UserText))
		fmt.Printf("  Evapo> %s\n", truncateLine(e.AssistantText))
		fmt.Println()
	}
	return nil
}

func runLogsSession(ctx context.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid session ID: %s", arg)
	}

	sink, err := openSink()
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	entries, err := sink.BySession(ctx, id)
	if err != nil {
		return fmt.Errorf("reading conversation log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No entries for session %s.\n", id)
		return nil
	}

	fmt.Printf("Session %s, %d exchanges\n\n", id, len(entries))
	for _, e := range entries {
		fmt.Printf("You>   %s\n", e.UserText)
		fmt.Printf("Evapo> %s\n\n", e.AssistantText)
	}
	return nil
}

func runLogsDelete(ctx context.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid session ID: %s", arg)
	}

	sink, err := openSink()
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	n, err := sink.DeleteBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting conversation log entries: %w", err)
	}
	fmt.Printf("Deleted %d entries for session %s.\n", n, id)
	return nil
}

func truncateLine(s string) string {
	const max = 96
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// formatTime renders a timestamp relative to now for recent entries.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
