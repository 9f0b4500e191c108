package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/skinscout/internal/config"
	"github.com/rewired-gh/skinscout/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skinscout",
		Short: "Scan marketplace listings for underpriced patterns and decorations",
		Long: `skinscout scans marketplace listing pages for target items, filters them by
pattern value or attached decoration value, and alerts once per listing.

Examples:
  skinscout scan decorations
  skinscout scan patterns --passes 1
  skinscout bot
  skinscout catalog crawl
  skinscout catalog load`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded
			logger.Init(cfg.Logging.Level, cfg.Logging.Format)
			if configPath != "" {
				logger.Info("Configuration loaded from %s", configPath)
			}
			return nil
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (defaults and SKINSCOUT_* env vars apply without one)")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newBotCommand())
	rootCmd.AddCommand(newCatalogCommand())

	return rootCmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
