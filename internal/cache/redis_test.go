package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/skinscout/internal/models"
)

func newTestCache(t *testing.T) (*PriceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), Config{
		URL:       "redis://" + mr.Addr() + "/0",
		KeyPrefix: "decoration:",
		TTL:       72 * time.Hour,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPutAllAndPrice(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	prices := []models.DecorationPrice{
		{Name: "Sticker | Natus Vincere | Katowice 2014", Normalized: "sticker|natusvincere|katowice2014", Price: 412.5, Collection: "Katowice 2014"},
		{Name: "Sticker | Crown (Foil)", Normalized: "sticker|crown(foil)", Price: 890, Collection: "Sticker | Battle Scarred"},
	}
	require.NoError(t, c.PutAll(ctx, prices))

	price, ok, err := c.Price(ctx, "sticker|natusvincere|katowice2014")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("412.5")))

	assert.Equal(t, "Sticker | Crown (Foil)", mr.HGet("decoration:sticker|crown(foil)", "name"))
	assert.Equal(t, 72*time.Hour, mr.TTL("decoration:sticker|crown(foil)"))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPriceMiss(t *testing.T) {
	c, _ := newTestCache(t)

	price, ok, err := c.Price(context.Background(), "sticker|unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, price.IsZero())
}

func TestPriceUnparsable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.HSet("decoration:sticker|bad", "price", "n/a")

	_, ok, err := c.Price(context.Background(), "sticker|bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPricesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutAll(ctx, []models.DecorationPrice{{Name: "x", Normalized: "x", Price: 3}}))
	mr.FastForward(73 * time.Hour)

	_, ok, err := c.Price(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, Config{URL: "redis://" + addr}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{URL: "not-a-url"}, nil)
	assert.Error(t, err)
}
