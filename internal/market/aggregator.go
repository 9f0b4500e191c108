// Package market pages through a marketplace listing feed and turns raw pages
// into priced items.
package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/models"
)

// ErrEmptyFeed is returned when a page stays empty for every allowed attempt.
var ErrEmptyFeed = errors.New("listing feed returned no data")

// Fetcher performs one outbound GET.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configures listing requests.
type Options struct {
	BaseURL         string
	AppID           string
	ContextID       string
	Country         string
	Language        string
	Currency        int
	PageSize        int
	EmptyRetryLimit int
	BaselineCount   int
}

// Aggregator fetches listing pages for item names.
type Aggregator struct {
	fetcher Fetcher
	opts    Options
}

// NewAggregator creates an Aggregator. Non-positive sizes fall back to the feed defaults.
func NewAggregator(f Fetcher, opts Options) *Aggregator {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.EmptyRetryLimit <= 0 {
		opts.EmptyRetryLimit = 1
	}
	if opts.BaselineCount <= 0 {
		opts.BaselineCount = 3
	}
	return &Aggregator{fetcher: f, opts: opts}
}

// PageSize returns the number of listings requested per page.
func (a *Aggregator) PageSize() int {
	return a.opts.PageSize
}

// ListingURL builds the render URL for one page of an item's listings.
func (a *Aggregator) ListingURL(name string, start int) string {
	q := url.Values{}
	q.Set("query", "")
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(a.opts.PageSize))
	q.Set("country", a.opts.Country)
	q.Set("language", a.opts.Language)
	q.Set("currency", strconv.Itoa(a.opts.Currency))
	return a.ItemURL(name) + "/render/?" + q.Encode()
}

// ItemURL returns the public listing page of an item.
func (a *Aggregator) ItemURL(name string) string {
	return a.opts.BaseURL + "/listings/" + a.opts.AppID + "/" + url.PathEscape(name)
}

// FetchPage fetches the page starting at offset start. Failed or empty responses are
// retried up to the configured limit, after which ErrEmptyFeed is returned.
// A decoded page without listings is returned as is: it marks the end of the feed.
func (a *Aggregator) FetchPage(ctx context.Context, name string, start int) (*Page, error) {
	rawURL := a.ListingURL(name, start)

	for attempt := 1; attempt <= a.opts.EmptyRetryLimit; attempt++ {
		body, err := a.fetchRecovering(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		page, err := DecodePage(body, a.opts.AppID, a.opts.ContextID)
		if err != nil {
			logger.Warn("Undecodable page for %s at %d (attempt %d/%d): %v", name, start, attempt, a.opts.EmptyRetryLimit, err)
			continue
		}
		if page != nil {
			return page, nil
		}
		logger.Debug("Empty response for %s at %d (attempt %d/%d)", name, start, attempt, a.opts.EmptyRetryLimit)
	}

	return nil, fmt.Errorf("%s at %d: %w", name, start, ErrEmptyFeed)
}

// fetchRecovering absorbs request failures into an empty result. The fetcher's gate
// has already applied the failure cooldown. Only context errors are returned.
func (a *Aggregator) fetchRecovering(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := a.fetcher.Get(ctx, rawURL)
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	logger.Warn("Bad request for %s: %v", rawURL, err)
	return nil, nil
}

// ExtractPricedItems joins listings to their assets in feed order. Listings with a
// missing asset, name or price are logged and skipped.
func (a *Aggregator) ExtractPricedItems(page *Page, start int) []models.PricedItem {
	return ExtractPricedItems(page, start/a.opts.PageSize+1)
}

// ExtractPricedItems joins listings to their assets, tagging each item with pageNumber.
func ExtractPricedItems(page *Page, pageNumber int) []models.PricedItem {
	if page.Empty() {
		return nil
	}

	items := make([]models.PricedItem, 0, len(page.ListingIDs))
	for _, id := range page.ListingIDs {
		listing := page.Listings[id]

		asset, ok := page.Assets[listing.Asset.ID]
		if !ok {
			logger.Warn("Listing %s references missing asset %q", id, listing.Asset.ID)
			continue
		}
		if listing.ConvertedPrice == nil || listing.ConvertedFee == nil || asset.MarketName == "" {
			logger.Warn("Listing %s is missing price or name fields", id)
			continue
		}

		items = append(items, models.PricedItem{
			ListingID: id,
			Name:      asset.MarketName,
			Price:     decimal.New(*listing.ConvertedPrice+*listing.ConvertedFee, -2),
			Page:      pageNumber,
		})
	}

	return items
}

// AverageBaseline averages the first BaselineCount items of the first page, dividing
// by the number of items actually present. An empty first page yields zero.
func (a *Aggregator) AverageBaseline(ctx context.Context, name string) (decimal.Decimal, error) {
	page, err := a.FetchPage(ctx, name, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return Average(a.ExtractPricedItems(page, 0), a.opts.BaselineCount), nil
}

// Average returns the mean price of the first n items.
func Average(items []models.PricedItem, n int) decimal.Decimal {
	if len(items) < n {
		n = len(items)
	}
	if n <= 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, item := range items[:n] {
		sum = sum.Add(item.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
