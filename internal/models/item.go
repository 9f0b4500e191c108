// Package models defines the core domain entities: priced listings, their pattern and
// decoration enrichments, proxies and catalog prices.
package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// UnscoredOverprice is reported for decoration items with no priced decorations.
// Any sane positive threshold excludes them.
var UnscoredOverprice = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// PricedItem is one listing joined with its asset.
// ListingID is unique within a page, not across pages or time.
type PricedItem struct {
	ListingID string          `json:"listing_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Page      int             `json:"page"`
}

// Validate checks item field constraints.
func (i *PricedItem) Validate() error {
	if i.ListingID == "" {
		return errors.New("listing ID must not be empty")
	}
	if i.Name == "" {
		return errors.New("item name must not be empty")
	}
	if i.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	return nil
}

// Item is anything the filters emit and the orchestrator alerts on.
type Item interface {
	ID() string
	Base() PricedItem
}

// ID returns the listing identifier used for dedup.
func (i PricedItem) ID() string { return i.ListingID }

// Base returns the plain priced item.
func (i PricedItem) Base() PricedItem { return i }

// PatternItem carries the pattern attributes resolved by the companion service.
type PatternItem struct {
	PricedItem
	AveragePrice decimal.Decimal `json:"average_price"`
	PatternValue float64         `json:"pattern_value"`
	PatternSeed  int             `json:"pattern_seed"`
}

// OverpricePercent compares the price to the average baseline:
// round((price - avg) / avg * 100, 2). A zero baseline yields UnscoredOverprice.
func (i PatternItem) OverpricePercent() decimal.Decimal {
	if i.AveragePrice.IsZero() {
		return UnscoredOverprice
	}
	return i.Price.Sub(i.AveragePrice).Div(i.AveragePrice).Mul(hundred).Round(2)
}

// Overprice is the absolute difference to the baseline, rounded to cents.
func (i PatternItem) Overprice() decimal.Decimal {
	return i.Price.Sub(i.AveragePrice).Round(2)
}

// Decoration is one priced sub-item attached to a listing.
type Decoration struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// DecorationItem carries the decorations resolved from the price cache.
type DecorationItem struct {
	PricedItem
	AveragePrice decimal.Decimal `json:"average_price"`
	Decorations  []Decoration    `json:"decorations"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// NewDecorationItem sums the resolved decorations into TotalValue.
func NewDecorationItem(base PricedItem, average decimal.Decimal, decorations []Decoration) DecorationItem {
	total := decimal.Zero
	for _, d := range decorations {
		total = total.Add(d.Price)
	}
	return DecorationItem{
		PricedItem:   base,
		AveragePrice: average,
		Decorations:  decorations,
		TotalValue:   total,
	}
}

// OverpricePercent is how much of the decoration value the seller charges on top of
// the baseline: round((price - avg) / (total / 100), 2), or UnscoredOverprice when
// no decoration was priced.
func (i DecorationItem) OverpricePercent() decimal.Decimal {
	if i.TotalValue.IsZero() {
		return UnscoredOverprice
	}
	return i.Price.Sub(i.AveragePrice).Div(i.TotalValue.Div(hundred)).Round(2)
}

// Overprice is the absolute difference to the baseline, rounded to cents.
func (i DecorationItem) Overprice() decimal.Decimal {
	return i.Price.Sub(i.AveragePrice).Round(2)
}
