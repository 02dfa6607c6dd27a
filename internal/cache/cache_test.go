package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/model"
)

func TestMemoryCacheSetGetRoundTrip(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 0)

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMarketIDCacheRoundTrip(t *testing.T) {
	mc := NewMarketIDCache(New(), time.Minute, nil)
	ctx := context.Background()

	_, ok := mc.Get(ctx, "binance", "BTCUSDT")
	require.False(t, ok)

	mc.Set(ctx, "binance", "BTCUSDT", 42)
	id, ok := mc.Get(ctx, "binance", "BTCUSDT")
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	sc := NewSnapshotCache(New(), time.Minute, nil)
	ctx := context.Background()

	snap := model.OrderBookSnapshot{MarketID: 1, UpdateID: 5, Bids: []model.PriceLevel{{Price: 100, Quantity: 1}}}
	sc.Set(ctx, 1, snap)

	got, ok := sc.Get(ctx, 1)
	require.True(t, ok)
	require.Equal(t, snap.UpdateID, got.UpdateID)
	require.Len(t, got.Bids, 1)
}
