package filter

import (
	"context"
	"iter"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/market"
	"github.com/rewired-gh/skinscout/internal/models"
)

// DecorationInfoTag names the description entry that lists attached decorations.
const DecorationInfoTag = "sticker_info"

// PriceLookup resolves a normalized decoration name to its cached price.
type PriceLookup interface {
	Price(ctx context.Context, normalized string) (price decimal.Decimal, ok bool, err error)
}

// DecorationCriteria are the emission thresholds of the decoration filter.
// Zero item price bounds are disabled.
type DecorationCriteria struct {
	MaxOverprice  decimal.Decimal
	MinItemPrice  decimal.Decimal
	MaxItemPrice  decimal.Decimal
	MinTotalValue decimal.Decimal
}

// DecorationFilter finds listings whose attached decorations are worth more than
// the seller charges on top of the baseline.
type DecorationFilter struct {
	src      Source
	prices   PriceLookup
	opts     PageOptions
	criteria DecorationCriteria
}

// NewDecorationFilter creates a DecorationFilter.
func NewDecorationFilter(src Source, prices PriceLookup, opts PageOptions, criteria DecorationCriteria) *DecorationFilter {
	return &DecorationFilter{src: src, prices: prices, opts: opts, criteria: criteria}
}

// Find lazily yields the qualifying listings of name in ascending price order per page.
func (f *DecorationFilter) Find(ctx context.Context, name string) iter.Seq[models.DecorationItem] {
	return scanPages(ctx, f.src, f.opts, name, f.enrich, f.accept)
}

func (f *DecorationFilter) accept(item models.DecorationItem) bool {
	c := f.criteria
	if item.OverpricePercent().GreaterThan(c.MaxOverprice) {
		return false
	}
	if c.MinItemPrice.IsPositive() && item.Price.LessThan(c.MinItemPrice) {
		return false
	}
	if c.MaxItemPrice.IsPositive() && item.Price.GreaterThan(c.MaxItemPrice) {
		return false
	}
	return item.TotalValue.GreaterThanOrEqual(c.MinTotalValue)
}

func (f *DecorationFilter) enrich(ctx context.Context, page *market.Page, items []models.PricedItem, average decimal.Decimal) ([]models.DecorationItem, error) {
	out := make([]models.DecorationItem, 0, len(items))
	for _, item := range items {
		decorations, err := f.resolve(ctx, page.Descriptions(item.ListingID))
		if err != nil {
			return nil, err
		}
		out = append(out, models.NewDecorationItem(item, average, decorations))
	}
	return out, nil
}

// resolve prices the decorations listed in the last description entry.
// Names missing from the cache are dropped.
func (f *DecorationFilter) resolve(ctx context.Context, descriptions []market.Description) ([]models.Decoration, error) {
	if len(descriptions) == 0 {
		return nil, nil
	}
	last := descriptions[len(descriptions)-1]
	if last.Name != DecorationInfoTag {
		return nil, nil
	}

	var decorations []models.Decoration
	for _, name := range ParseDecorationNames(last.Value) {
		price, ok, err := f.prices.Price(ctx, models.NormalizeName(name))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Price lookup failed for %q: %v", name, err)
			continue
		}
		if !ok {
			logger.Debug("No cached price for %q", name)
			continue
		}
		decorations = append(decorations, models.Decoration{Name: name, Price: price})
	}
	return decorations, nil
}

// ParseDecorationNames returns the title attribute of every img element in markup, in order.
func ParseDecorationNames(markup string) []string {
	var names []string
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return names
		case html.StartTagToken, html.SelfClosingTagToken:
			tag, hasAttr := z.TagName()
			if string(tag) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "title" {
					if title := strings.TrimSpace(string(val)); title != "" {
						names = append(names, title)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}
