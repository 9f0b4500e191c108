package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/models"
)

const loadBatchSize = 500

// Catalog is the read side of the crawled price store.
type Catalog interface {
	AllPrices(ctx context.Context) ([]models.DecorationPrice, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cache receives catalog prices.
type Cache interface {
	PutAll(ctx context.Context, prices []models.DecorationPrice) error
}

// Loader copies the catalog into the price cache.
type Loader struct {
	catalog Catalog
	cache   Cache
	maxAge  time.Duration
	now     func() time.Time
}

// NewLoader creates a Loader. Entries older than maxAge are pruned before loading;
// a non-positive maxAge keeps everything.
func NewLoader(catalog Catalog, cache Cache, maxAge time.Duration) *Loader {
	return &Loader{catalog: catalog, cache: cache, maxAge: maxAge, now: time.Now}
}

// Load writes every catalog entry to the cache and returns how many were written.
func (l *Loader) Load(ctx context.Context) (int, error) {
	if l.maxAge > 0 {
		pruned, err := l.catalog.PruneOlderThan(ctx, l.now().Add(-l.maxAge))
		if err != nil {
			return 0, err
		}
		if pruned > 0 {
			logger.Info("Pruned %d stale catalog entries", pruned)
		}
	}

	prices, err := l.catalog.AllPrices(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		logger.Warn("Catalog is empty, nothing to load")
		return 0, nil
	}

	loaded := 0
	for start := 0; start < len(prices); start += loadBatchSize {
		end := min(start+loadBatchSize, len(prices))
		if err := l.cache.PutAll(ctx, prices[start:end]); err != nil {
			return loaded, fmt.Errorf("failed to load batch at %d: %w", start, err)
		}
		loaded = end
	}

	logger.Info("Loaded %d decoration prices into the cache", loaded)
	return loaded, nil
}
