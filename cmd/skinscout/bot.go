package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/telegram"
)

func newBotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that starts and stops scans",
		Long: `Listens for /patterns, /decorations, /stop, /status and /ping in the configured chat.
Scans started from the chat deliver their alerts back to it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Telegram.Enabled {
				return errors.New("telegram.enabled must be true to run the bot")
			}

			ctx, cancel := signalContext()
			defer cancel()

			m, err := startMetrics(ctx, cfg)
			if err != nil {
				return err
			}

			tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegramMaxRetries, telegramRetryDelay)
			if err != nil {
				return fmt.Errorf("failed to initialize Telegram client: %w", err)
			}

			e, err := newEngine(ctx, cfg, m, tgClient, 0)
			if err != nil {
				return err
			}
			defer e.Close()

			tgClient.ListenForCommands(ctx, e.orch)
			logger.Info("Bot is listening for commands")

			<-ctx.Done()
			logger.Info("Shutdown signal received, cleaning up...")
			e.orch.Stop()
			return nil
		},
	}
}
