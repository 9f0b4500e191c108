package models

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// DecorationPrice is one crawled decoration price, as stored in the catalog and the cache.
type DecorationPrice struct {
	Name       string    `json:"name"`
	Normalized string    `json:"normalized"`
	Price      float64   `json:"price"`
	Collection string    `json:"collection"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks catalog entry constraints.
func (d *DecorationPrice) Validate() error {
	if d.Name == "" {
		return errors.New("decoration name must not be empty")
	}
	if d.Normalized == "" {
		return errors.New("normalized name must not be empty")
	}
	if d.Price <= 0 {
		return errors.New("decoration price must be positive")
	}
	return nil
}

// NormalizeName folds a decoration name into its cache key: lower case, no whitespace,
// and ':' unified with the '|' separator so "Sticker: A | B" and "Sticker | A | B" collide.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			continue
		case r == ':':
			b.WriteRune('|')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
