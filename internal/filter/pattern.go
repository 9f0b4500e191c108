package filter

import (
	"context"
	"iter"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/fetch"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/market"
	"github.com/rewired-gh/skinscout/internal/models"
)

// Inspector resolves pattern attributes from an inspect link.
type Inspector interface {
	Inspect(ctx context.Context, inspectLink string) (fetch.PatternInfo, error)
}

// PatternFilter finds listings with a collectible pattern value at a fair price.
type PatternFilter struct {
	src          Source
	inspector    Inspector
	opts         PageOptions
	maxOverprice decimal.Decimal
}

// NewPatternFilter creates a PatternFilter emitting items at most maxOverprice percent
// above the baseline.
func NewPatternFilter(src Source, inspector Inspector, opts PageOptions, maxOverprice decimal.Decimal) *PatternFilter {
	return &PatternFilter{src: src, inspector: inspector, opts: opts, maxOverprice: maxOverprice}
}

// PatternAllowed reports whether a pattern value falls in one of the collectible ranges.
func PatternAllowed(v float64) bool {
	switch {
	case v < 0.01:
		return true
	case v >= 0.07 && v <= 0.08:
		return true
	case v >= 0.15 && v <= 0.18:
		return true
	case v >= 0.38 && v <= 0.39:
		return true
	case v >= 0.99:
		return true
	}
	return false
}

// Find lazily yields the qualifying listings of name in ascending price order per page.
func (f *PatternFilter) Find(ctx context.Context, name string) iter.Seq[models.PatternItem] {
	return scanPages(ctx, f.src, f.opts, name, f.enrich, f.accept)
}

func (f *PatternFilter) accept(item models.PatternItem) bool {
	return PatternAllowed(item.PatternValue) && item.OverpricePercent().LessThanOrEqual(f.maxOverprice)
}

func (f *PatternFilter) enrich(ctx context.Context, page *market.Page, items []models.PricedItem, average decimal.Decimal) ([]models.PatternItem, error) {
	out := make([]models.PatternItem, 0, len(items))
	for _, item := range items {
		link, ok := page.InspectLink(item.ListingID)
		if !ok {
			logger.Warn("Listing %s has no inspect link", item.ListingID)
			continue
		}

		info, err := f.inspector.Inspect(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Bad pattern lookup for listing %s: %v", item.ListingID, err)
			continue
		}

		out = append(out, models.PatternItem{
			PricedItem:   item,
			AveragePrice: average,
			PatternValue: info.FloatValue,
			PatternSeed:  info.PaintSeed,
		})
	}
	return out, nil
}
