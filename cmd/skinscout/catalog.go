package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/skinscout/internal/cache"
	"github.com/rewired-gh/skinscout/internal/catalog"
	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/storage"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the decoration price catalog",
		Long:  `Crawl decoration prices into the SQLite catalog and load them into the Redis price cache.`,
	}
	cmd.AddCommand(newCatalogCrawlCommand())
	cmd.AddCommand(newCatalogLoadCommand())
	return cmd
}

func newCatalogCrawlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [collection...]",
		Short: "Crawl decoration prices for the configured or given collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			collections := cfg.Catalog.Collections
			if len(args) > 0 {
				collections = args
			}
			if len(collections) == 0 {
				return errors.New("no collections to crawl")
			}

			ctx, cancel := signalContext()
			defer cancel()

			m, err := startMetrics(ctx, cfg)
			if err != nil {
				return err
			}

			store, err := storage.New(cfg.Catalog.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close storage: %v", err)
				}
			}()

			clk := clock.NewReal()
			_, client, err := newMarketFetcher(cfg, m, clk)
			if err != nil {
				return err
			}

			crawler := catalog.NewCrawler(client, store, clk, catalog.Options{
				BaseURL:         cfg.Marketplace.BaseURL,
				AppID:           cfg.Marketplace.AppID,
				PageSize:        cfg.Catalog.PageSize,
				MinPrice:        cfg.Catalog.MinPrice,
				SellerFeeRatio:  cfg.Catalog.SellerFeeRatio,
				LaunchDelay:     cfg.Catalog.LaunchDelay,
				EmptyRetryLimit: cfg.Marketplace.EmptyRetryLimit,
			}, m)

			logger.Info("Crawling %d collections", len(collections))
			stored, err := crawler.CrawlAll(ctx, collections)
			logger.Info("Stored %d decoration prices", stored)
			return err
		},
	}
}

func newCatalogLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the catalog into the price cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := storage.New(cfg.Catalog.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close storage: %v", err)
				}
			}()

			pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Cache.Timeout)
			defer pingCancel()
			prices, err := cache.New(pingCtx, cache.Config{
				URL:       cfg.Cache.URL,
				KeyPrefix: cfg.Cache.KeyPrefix,
				TTL:       cfg.Cache.TTL,
			}, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to price cache: %w", err)
			}
			defer prices.Close()

			if _, err := catalog.NewLoader(store, prices, cfg.Catalog.MaxAge).Load(ctx); err != nil {
				return err
			}
			cached, err := prices.Count(ctx)
			if err != nil {
				return err
			}
			logger.Info("Price cache now holds %d decorations", cached)
			return nil
		},
	}
}
