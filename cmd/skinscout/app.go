package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/cache"
	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/config"
	"github.com/rewired-gh/skinscout/internal/fetch"
	"github.com/rewired-gh/skinscout/internal/filter"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/market"
	"github.com/rewired-gh/skinscout/internal/metrics"
	"github.com/rewired-gh/skinscout/internal/scan"
)

// engine holds the wired scan components.
type engine struct {
	prices *cache.PriceCache
	orch   *scan.Orchestrator
}

func (e *engine) Close() {
	if e.prices != nil {
		if err := e.prices.Close(); err != nil {
			logger.Warn("Failed to close price cache: %v", err)
		}
	}
}

// startMetrics builds the collector and serves it when enabled.
func startMetrics(ctx context.Context, c *config.Config) (*metrics.Collector, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if c.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, c.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics server stopped: %v", err)
			}
		}()
		logger.Info("Serving metrics on %s", c.Metrics.ListenAddr)
	}
	return m, nil
}

// newMarketFetcher builds the gate and the proxy-rotating marketplace client.
func newMarketFetcher(c *config.Config, m *metrics.Collector, clk clock.Clock) (*fetch.Gate, *fetch.Client, error) {
	var proxies []string
	if c.Marketplace.ProxyFile != "" {
		loaded, err := fetch.LoadProxyFile(c.Marketplace.ProxyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load proxies: %w", err)
		}
		proxies = loaded
	}
	if len(proxies) == 0 {
		logger.Warn("No proxies configured, requests go out directly")
	} else {
		logger.Info("Loaded %d proxies", len(proxies))
	}

	gate := fetch.NewGate(c.Throttle.MinInterval, clk)
	policy := fetch.Policy{
		RequestDelay: c.Throttle.RequestDelay,
		GlobalDelay:  c.Throttle.GlobalDelay,
		Cooldown:     c.Throttle.FailureCooldown,
		Limited:      true,
	}
	return gate, fetch.NewClient(gate, policy, fetch.NewProxyPool(proxies), c.Marketplace.Timeout, m), nil
}

// newEngine wires fetchers, filters and the orchestrator for the scan and bot commands.
func newEngine(ctx context.Context, c *config.Config, m *metrics.Collector, sink scan.Sink, maxPasses int) (*engine, error) {
	clk := clock.NewReal()

	gate, client, err := newMarketFetcher(c, m, clk)
	if err != nil {
		return nil, err
	}

	aggregator := market.NewAggregator(client, market.Options{
		BaseURL:         c.Marketplace.BaseURL,
		AppID:           c.Marketplace.AppID,
		ContextID:       c.Marketplace.ContextID,
		Country:         c.Marketplace.Country,
		Language:        c.Marketplace.Language,
		Currency:        c.Marketplace.Currency,
		PageSize:        c.Marketplace.PageSize,
		EmptyRetryLimit: c.Marketplace.EmptyRetryLimit,
		BaselineCount:   c.Marketplace.BaselineCount,
	})
	pageOpts := filter.PageOptions{
		MaxPage:      c.Marketplace.MaxPage,
		CeilingRatio: decimal.NewFromFloat(c.Marketplace.PriceCeilingRatio),
	}

	companionGate := gate
	if !c.Companion.ShareGate {
		companionGate = fetch.NewGate(0, clk)
	}
	companion := fetch.NewCompanionClient(c.Companion.URL, companionGate, fetch.Policy{
		RequestDelay: c.Companion.PreDelay,
		Cooldown:     c.Companion.ErrorCooldown,
	}, c.Companion.Timeout, m)

	e := &engine{}

	finders := map[scan.Mode]scan.Finder{
		scan.ModePatterns: scan.FinderOf(filter.NewPatternFilter(aggregator, companion, pageOpts,
			decimal.NewFromFloat(c.Search.Pattern.MaxOverprice)).Find),
	}

	cacheCtx, cancel := context.WithTimeout(ctx, c.Cache.Timeout)
	defer cancel()
	prices, err := cache.New(cacheCtx, cache.Config{URL: c.Cache.URL, KeyPrefix: c.Cache.KeyPrefix, TTL: c.Cache.TTL}, m)
	if err != nil {
		logger.Warn("Price cache unavailable, decoration scans disabled: %v", err)
	} else {
		e.prices = prices
		finders[scan.ModeDecorations] = scan.FinderOf(filter.NewDecorationFilter(aggregator, prices, pageOpts,
			filter.DecorationCriteria{
				MaxOverprice:  decimal.NewFromFloat(c.Search.Decoration.MaxOverprice),
				MinItemPrice:  decimal.NewFromFloat(c.Search.Decoration.MinItemPrice),
				MaxItemPrice:  decimal.NewFromFloat(c.Search.Decoration.MaxItemPrice),
				MinTotalValue: decimal.NewFromFloat(c.Search.Decoration.MinTotalValue),
			}).Find)
	}

	e.orch = scan.New(scan.Options{
		Finders: finders,
		Targets: scan.FileTargets(c.Search.ItemsFile, c.Search.ExpandTargets, c.Search.Qualities, c.Search.StatTrakPrefix),
		ItemURL: aggregator.ItemURL,
		Sink:    sink,
		Clock:   clk,
		Metrics: m,
		Config: scan.Config{
			LaunchDelay: c.Throttle.LaunchDelay,
			PassDelay:   c.Throttle.PassDelay,
			MaxPasses:   maxPasses,
		},
	})
	return e, nil
}

const (
	telegramMaxRetries = 3
	telegramRetryDelay = time.Second
)
