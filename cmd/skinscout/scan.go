package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/scan"
	"github.com/rewired-gh/skinscout/internal/telegram"
)

func newScanCommand() *cobra.Command {
	var passes int

	cmd := &cobra.Command{
		Use:       "scan <patterns|decorations>",
		Short:     "Run scan passes and alert on new matches",
		Long:      `Runs passes over the item list until interrupted, alerting through Telegram when enabled and the log otherwise.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(scan.ModePatterns), string(scan.ModeDecorations)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := scan.ParseMode(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			m, err := startMetrics(ctx, cfg)
			if err != nil {
				return err
			}

			var (
				sink     scan.Sink = scan.LogSink{}
				tgClient *telegram.Client
			)
			if cfg.Telegram.Enabled {
				tgClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegramMaxRetries, telegramRetryDelay)
				if err != nil {
					return fmt.Errorf("failed to initialize Telegram client: %w", err)
				}
				sink = tgClient
				logger.Info("Telegram client initialized successfully")
			} else {
				logger.Debug("Telegram notifications disabled, alerts go to the log")
			}

			e, err := newEngine(ctx, cfg, m, sink, passes)
			if err != nil {
				return err
			}
			defer e.Close()

			err = e.orch.Run(ctx, mode)
			if errors.Is(err, context.Canceled) {
				logger.Info("Shutdown signal received, scan stopped")
				return nil
			}
			if err != nil && tgClient != nil {
				if sendErr := tgClient.SendError(context.Background(), err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return err
		},
	}

	cmd.Flags().IntVar(&passes, "passes", 0, "Stop after this many passes (0 runs until interrupted)")
	return cmd
}
