package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/spf13/cobra"

	"github.com/evapo/evapo/internal/agent"
	"github.com/evapo/evapo/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(args)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
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

	s := a.Sessions.Create()

	// Stream the answer as it arrives; fall back to printing the final
	// text if nothing streamed.
	var streamed bool
	callback := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
		if chunk == nil {
			return nil
		}
		for _, part := range chunk.Content {
			if part.Text != "" {
				streamed = true
				fmt.Print(part.Text)
			}
		}
		return nil
	}

	resp, err := a.Agent.ExecuteStream(ctx, agent.Request{
		SessionID: s.ID,
		Input:     question,
	}, callback)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	if !streamed {
		fmt.Print(resp.FinalText)
	}
	fmt.Println()
	return nil
}
