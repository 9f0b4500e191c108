package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Page is one decoded listing render response.
// Listings keep the feed's order, which is ascending by price.
type Page struct {
	Success    bool
	TotalCount int
	ListingIDs []string
	Listings   map[string]Listing
	// Assets holds the app/context scoped asset table keyed by asset ID.
	Assets map[string]Asset
}

// Listing is one sell order.
type Listing struct {
	ListingID      string       `json:"listingid"`
	ConvertedPrice *int64       `json:"converted_price"`
	ConvertedFee   *int64       `json:"converted_fee"`
	Asset          ListingAsset `json:"asset"`
}

// ListingAsset references the asset behind a listing.
type ListingAsset struct {
	ID            string         `json:"id"`
	MarketActions []MarketAction `json:"market_actions"`
}

// MarketAction is a templated link attached to a listing, such as "Inspect in Game".
type MarketAction struct {
	Link string `json:"link"`
	Name string `json:"name"`
}

// Asset is the item instance metadata.
type Asset struct {
	ID           string        `json:"id"`
	MarketName   string        `json:"market_name"`
	Descriptions []Description `json:"descriptions"`
}

// Description is one entry of an asset's description list. Value may hold HTML.
type Description struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Name  string `json:"name"`
}

type rawPage struct {
	Success     *bool           `json:"success"`
	TotalCount  int             `json:"total_count"`
	ListingInfo json.RawMessage `json:"listinginfo"`
	Assets      json.RawMessage `json:"assets"`
}

// Empty reports whether the page has no listings.
func (p *Page) Empty() bool {
	return p == nil || len(p.ListingIDs) == 0
}

// Asset returns the asset referenced by a listing.
func (p *Page) Asset(listingID string) (Asset, bool) {
	listing, ok := p.Listings[listingID]
	if !ok {
		return Asset{}, false
	}
	asset, ok := p.Assets[listing.Asset.ID]
	return asset, ok
}

// InspectLink returns the listing's first market action link with its
// %listingid% and %assetid% placeholders filled in.
func (p *Page) InspectLink(listingID string) (string, bool) {
	listing, ok := p.Listings[listingID]
	if !ok || len(listing.Asset.MarketActions) == 0 || listing.Asset.MarketActions[0].Link == "" {
		return "", false
	}
	link := listing.Asset.MarketActions[0].Link
	link = strings.ReplaceAll(link, "%listingid%", listingID)
	link = strings.ReplaceAll(link, "%assetid%", listing.Asset.ID)
	return link, true
}

// Descriptions returns the description list of the listing's asset.
func (p *Page) Descriptions(listingID string) []Description {
	asset, ok := p.Asset(listingID)
	if !ok {
		return nil
	}
	return asset.Descriptions
}

// DecodePage parses a listing render body. The feed encodes empty objects as
// "[]", which decode to empty tables. A body with no content or an explicit
// success=false decodes to nil.
func DecodePage(body []byte, appID, contextID string) (*Page, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || isEmptyJSON(body) {
		return nil, nil
	}

	var raw rawPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode listing page: %w", err)
	}
	if raw.Success != nil && !*raw.Success {
		return nil, nil
	}

	page := &Page{
		Success:    true,
		TotalCount: raw.TotalCount,
		Listings:   make(map[string]Listing),
		Assets:     make(map[string]Asset),
	}

	ids, err := decodeListings(raw.ListingInfo, page.Listings)
	if err != nil {
		return nil, err
	}
	page.ListingIDs = ids

	var apps map[string]json.RawMessage
	if err := decodeObject(raw.Assets, &apps); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}
	var contexts map[string]json.RawMessage
	if err := decodeObject(apps[appID], &contexts); err != nil {
		return nil, fmt.Errorf("failed to decode assets for app %s: %w", appID, err)
	}
	if err := decodeObject(contexts[contextID], &page.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets for context %s: %w", contextID, err)
	}
	if page.Assets == nil {
		page.Assets = make(map[string]Asset)
	}

	return page, nil
}

// decodeListings decodes the listinginfo object into dst and returns its keys in document order.
func decodeListings(raw json.RawMessage, dst map[string]Listing) ([]string, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode listinginfo: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("failed to decode listinginfo: unexpected token %v", tok)
	}

	var ids []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode listinginfo: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to decode listinginfo: unexpected key %v", tok)
		}
		var listing Listing
		if err := dec.Decode(&listing); err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", id, err)
		}
		if _, dup := dst[id]; !dup {
			ids = append(ids, id)
		}
		dst[id] = listing
	}

	return ids, nil
}

func decodeObject(raw json.RawMessage, dst any) error {
	if isEmptyJSON(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isEmptyJSON(raw []byte) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
