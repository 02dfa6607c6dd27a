package orderbook

import (
	"testing"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaUpdatesLevelsInOrder(t *testing.T) {
	r := New(10)
	r.LoadSnapshot(model.OrderBookSnapshot{
		MarketID: 1,
		UpdateID: 100,
		Bids:     []model.PriceLevel{{Price: 10, Quantity: 1}},
		Asks:     []model.PriceLevel{{Price: 11, Quantity: 1}},
	})

	err := r.ApplyDelta(Delta{
		MarketID:      1,
		FirstUpdateID: 101,
		LastUpdateID:  101,
		Bids:          []model.PriceLevel{{Price: 10.5, Quantity: 2}},
	})
	require.NoError(t, err)

	snap, ok := r.Snapshot(1)
	require.True(t, ok)
	best, ok := snap.BestBid()
	require.True(t, ok)
	require.Equal(t, 10.5, best.Price)
}

func TestApplyDeltaRemovesZeroQuantityLevel(t *testing.T) {
	r := New(10)
	r.LoadSnapshot(model.OrderBookSnapshot{
		MarketID: 1,
		UpdateID: 100,
		Bids:     []model.PriceLevel{{Price: 10, Quantity: 1}, {Price: 9, Quantity: 1}},
	})

	require.NoError(t, r.ApplyDelta(Delta{MarketID: 1, FirstUpdateID: 101, LastUpdateID: 101, Bids: []model.PriceLevel{{Price: 10, Quantity: 0}}}))

	snap, ok := r.Snapshot(1)
	require.True(t, ok)
	best, ok := snap.BestBid()
	require.True(t, ok)
	require.Equal(t, 9.0, best.Price)
}

func TestApplyDeltaWithoutSnapshotIsSequenceGap(t *testing.T) {
	r := New(10)
	err := r.ApplyDelta(Delta{MarketID: 5, FirstUpdateID: 1, LastUpdateID: 1})
	require.ErrorIs(t, err, model.ErrSequenceGap)
}

func TestApplyDeltaIgnoresStaleUpdate(t *testing.T) {
	r := New(10)
	r.LoadSnapshot(model.OrderBookSnapshot{MarketID: 1, UpdateID: 100})
	require.NoError(t, r.ApplyDelta(Delta{MarketID: 1, FirstUpdateID: 50, LastUpdateID: 50}))

	snap, _ := r.Snapshot(1)
	require.Equal(t, int64(100), snap.UpdateID)
}

// TestApplyDeltaDetectsMissingRange is the S3 scenario: book at update 105,
// next delta covers [108..110], skipping 106-107.
func TestApplyDeltaDetectsMissingRange(t *testing.T) {
	r := New(10)
	r.LoadSnapshot(model.OrderBookSnapshot{MarketID: 1, UpdateID: 105})

	err := r.ApplyDelta(Delta{MarketID: 1, FirstUpdateID: 108, LastUpdateID: 110,
		Bids: []model.PriceLevel{{Price: 10, Quantity: 1}}})
	require.ErrorIs(t, err, model.ErrSequenceGap)

	// the book must not have absorbed the gapped delta
	snap, ok := r.Snapshot(1)
	require.True(t, ok)
	require.Equal(t, int64(105), snap.UpdateID)
}

func TestApplyDeltaAcceptsContiguousRange(t *testing.T) {
	r := New(10)
	r.LoadSnapshot(model.OrderBookSnapshot{MarketID: 1, UpdateID: 105})

	err := r.ApplyDelta(Delta{MarketID: 1, FirstUpdateID: 106, LastUpdateID: 108,
		Bids: []model.PriceLevel{{Price: 10, Quantity: 1}}})
	require.NoError(t, err)

	snap, ok := r.Snapshot(1)
	require.True(t, ok)
	require.Equal(t, int64(108), snap.UpdateID)
}

func TestTopNTruncatesToDepth(t *testing.T) {
	r := New(2)
	r.LoadSnapshot(model.OrderBookSnapshot{
		MarketID: 1,
		Bids: []model.PriceLevel{
			{Price: 10, Quantity: 1},
			{Price: 9, Quantity: 1},
			{Price: 8, Quantity: 1},
		},
	})
	snap, _ := r.Snapshot(1)
	require.Len(t, snap.Bids, 2)
	require.Equal(t, 10.0, snap.Bids[0].Price)
}
