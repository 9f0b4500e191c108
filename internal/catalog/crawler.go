// Package catalog crawls decoration prices from the marketplace search feed into
// the SQLite catalog and loads the catalog into the price cache.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/metrics"
	"github.com/rewired-gh/skinscout/internal/models"
)

// ErrNoData is returned when a search page stays empty for every allowed attempt.
var ErrNoData = errors.New("search feed returned no data")

// decorationMarker must appear in a result name for it to be cataloged.
const decorationMarker = "Sticker"

// Fetcher performs one outbound GET.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Store persists crawled prices.
type Store interface {
	UpsertPrices(ctx context.Context, prices []models.DecorationPrice) error
}

// Options configures the crawler.
type Options struct {
	BaseURL         string
	AppID           string
	PageSize        int
	MinPrice        float64
	SellerFeeRatio  float64
	LaunchDelay     time.Duration
	EmptyRetryLimit int
}

// Crawler pages through search results for decoration collections.
type Crawler struct {
	fetcher Fetcher
	store   Store
	clock   clock.Clock
	opts    Options
	metrics *metrics.Collector
}

type searchResponse struct {
	Success    *bool `json:"success"`
	TotalCount int   `json:"total_count"`
	SearchData *struct {
		TotalCount int `json:"total_count"`
	} `json:"searchdata"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Name      string `json:"name"`
	HashName  string `json:"hash_name"`
	SellPrice *int64 `json:"sell_price"`
}

// NewCrawler creates a Crawler.
func NewCrawler(f Fetcher, store Store, clk clock.Clock, opts Options, m *metrics.Collector) *Crawler {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.EmptyRetryLimit <= 0 {
		opts.EmptyRetryLimit = 1
	}
	if opts.SellerFeeRatio <= 0 {
		opts.SellerFeeRatio = 1
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Crawler{fetcher: f, store: store, clock: clk, opts: opts, metrics: m}
}

// SearchURL builds the search render URL for one page of a collection query.
func (c *Crawler) SearchURL(query string, start int) string {
	q := url.Values{}
	q.Set("query", query)
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(c.opts.PageSize))
	q.Set("search_descriptions", "0")
	q.Set("sort_column", "default")
	q.Set("sort_dir", "desc")
	q.Set("appid", c.opts.AppID)
	q.Set("norender", "1")
	return c.opts.BaseURL + "/search/render/?" + q.Encode()
}

// Crawl catalogs every qualifying result of one collection and returns how many
// prices were stored.
func (c *Crawler) Crawl(ctx context.Context, collection string) (int, error) {
	stored := 0
	total := 1
	for start := 0; start < total; start += c.opts.PageSize {
		resp, err := c.fetchPage(ctx, collection, start)
		if err != nil {
			return stored, err
		}
		if start == 0 {
			total = resp.total()
			logger.Info("Collection %s has %d results", collection, total)
		}

		prices := c.extract(resp.Results, collection)
		if len(prices) == 0 {
			continue
		}
		if err := c.store.UpsertPrices(ctx, prices); err != nil {
			return stored, fmt.Errorf("failed to store %s prices: %w", collection, err)
		}
		stored += len(prices)
		c.metrics.AddCatalogUpserts(len(prices))
		logger.Debug("Collection %s: %d/%d, stored %d", collection, min(start+c.opts.PageSize, total), total, stored)
	}
	return stored, nil
}

// CrawlAll crawls every collection concurrently, spacing launches by LaunchDelay.
// A failing collection does not stop the others; all failures are joined.
func (c *Crawler) CrawlAll(ctx context.Context, collections []string) (int, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		errs   []error
		stored atomic.Int64
	)

	for i, collection := range collections {
		if i > 0 {
			if err := c.clock.Sleep(ctx, c.opts.LaunchDelay); err != nil {
				break
			}
		}
		g.Go(func() error {
			n, err := c.Crawl(ctx, collection)
			stored.Add(int64(n))
			if err != nil {
				logger.Warn("Crawl of %s failed: %v", collection, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", collection, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return int(stored.Load()), errors.Join(errs...)
}

func (c *Crawler) extract(results []searchResult, collection string) []models.DecorationPrice {
	now := c.clock.Now()
	prices := make([]models.DecorationPrice, 0, len(results))
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = r.HashName
		}
		if !strings.Contains(name, decorationMarker) || r.SellPrice == nil {
			continue
		}
		price := float64(*r.SellPrice) / 100 * c.opts.SellerFeeRatio
		if price < c.opts.MinPrice || price <= 0 {
			continue
		}
		prices = append(prices, models.DecorationPrice{
			Name:       name,
			Normalized: models.NormalizeName(name),
			Price:      price,
			Collection: collection,
			UpdatedAt:  now,
		})
	}
	return prices
}

// fetchPage fetches one search page, retrying failed or empty responses.
func (c *Crawler) fetchPage(ctx context.Context, query string, start int) (*searchResponse, error) {
	rawURL := c.SearchURL(query, start)
	for attempt := 1; attempt <= c.opts.EmptyRetryLimit; attempt++ {
		body, err := c.fetcher.Get(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Bad search request for %s at %d: %v", query, start, err)
			continue
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			logger.Warn("Undecodable search page for %s at %d: %v", query, start, err)
			continue
		}
		if resp.Success != nil && !*resp.Success {
			continue
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("%s at %d: %w", query, start, ErrNoData)
}

func (r *searchResponse) total() int {
	if r.SearchData != nil && r.SearchData.TotalCount > 0 {
		return r.SearchData.TotalCount
	}
	return r.TotalCount
}
