// Package filter turns an item's listing feed into a lazy sequence of deals,
// scored either by pattern value or by attached decoration value.
package filter

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/market"
	"github.com/rewired-gh/skinscout/internal/models"
)

// Source provides the listing pages of an item.
type Source interface {
	PageSize() int
	AverageBaseline(ctx context.Context, name string) (decimal.Decimal, error)
	FetchPage(ctx context.Context, name string, start int) (*market.Page, error)
	ExtractPricedItems(page *market.Page, start int) []models.PricedItem
}

// PageOptions bounds the page loop.
type PageOptions struct {
	// MaxPage is the last page index visited; offsets run from 0 to MaxPage*PageSize.
	MaxPage int
	// CeilingRatio cuts a page off at the first item priced above CeilingRatio*baseline.
	CeilingRatio decimal.Decimal
}

// DefaultPageOptions visits four pages and stops at 1.5x the baseline.
func DefaultPageOptions() PageOptions {
	return PageOptions{MaxPage: 3, CeilingRatio: decimal.RequireFromString("1.5")}
}

type enrichFunc[T models.Item] func(ctx context.Context, page *market.Page, items []models.PricedItem, average decimal.Decimal) ([]T, error)

// scanPages walks the feed of one item name. Each page is enriched, sorted by
// ascending price and emitted until the price ceiling; accept decides which
// items below the ceiling are yielded. The walk ends at the last allowed page,
// at the first page with no resolved items, on a fetch error or when ctx is done.
func scanPages[T models.Item](ctx context.Context, src Source, opts PageOptions, name string, enrich enrichFunc[T], accept func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		average, err := src.AverageBaseline(ctx, name)
		if err != nil {
			logEnd(name, err)
			return
		}
		if !average.IsPositive() {
			logger.Debug("No baseline for %s, skipping", name)
			return
		}
		ceiling := average.Mul(opts.CeilingRatio)
		pageSize := src.PageSize()

		for start := 0; start <= opts.MaxPage*pageSize; start += pageSize {
			page, err := src.FetchPage(ctx, name, start)
			if err != nil {
				logEnd(name, err)
				return
			}

			resolved, err := enrich(ctx, page, src.ExtractPricedItems(page, start), average)
			if err != nil {
				logEnd(name, err)
				return
			}
			if len(resolved) == 0 {
				logger.Debug("Feed exhausted for %s at %d", name, start)
				return
			}

			slices.SortStableFunc(resolved, func(a, b T) int {
				return a.Base().Price.Cmp(b.Base().Price)
			})
			logger.Debug("Received %d items of %s on page %d", len(resolved), name, start/pageSize+1)

			for _, item := range resolved {
				if item.Base().Price.GreaterThan(ceiling) {
					break
				}
				if accept(item) && !yield(item) {
					return
				}
			}
		}
	}
}

func logEnd(name string, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, market.ErrEmptyFeed):
		logger.Info("Stopping %s: %v", name, err)
	default:
		logger.Warn("Stopping %s: %v", name, err)
	}
}
