package streamcollector

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/exchange/mock"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/orderbook"
	"github.com/sawpanic/ingestd/internal/queue"
)

func TestBackoffIsBoundedByMax(t *testing.T) {
	max := 30 * time.Second
	for attempt := 1; attempt <= 20; attempt++ {
		d := backoff(attempt, time.Second, max)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, max)
	}
}

func TestRouteDropsUnclosedKlineAndForwardsClosed(t *testing.T) {
	ex := mock.New("mock")
	book := orderbook.New(10)
	trades := queue.New[model.Trade](10, nil)
	klines := queue.New[model.Candle](10, nil)
	s := New(ex, nil, book, nil, trades, klines, nil, Config{}, zerolog.Nop())

	s.route(context.Background(), Message{Type: MessageKline, Closed: false, Kline: model.Candle{Close: 1}})
	require.Equal(t, 0, klines.Len())

	s.route(context.Background(), Message{Type: MessageKline, Closed: true, Kline: model.Candle{Close: 2}})
	require.Equal(t, 1, klines.Len())
}

func TestRouteForwardsTrade(t *testing.T) {
	ex := mock.New("mock")
	book := orderbook.New(10)
	trades := queue.New[model.Trade](10, nil)
	klines := queue.New[model.Candle](10, nil)
	s := New(ex, nil, book, nil, trades, klines, nil, Config{}, zerolog.Nop())

	s.route(context.Background(), Message{Type: MessageTrade, Trade: model.Trade{Price: 100}})
	require.Equal(t, 1, trades.Len())
}

func TestRouteBookDeltaWithoutSnapshotDoesNotPanic(t *testing.T) {
	ex := mock.New("mock")
	book := orderbook.New(10)
	trades := queue.New[model.Trade](10, nil)
	klines := queue.New[model.Candle](10, nil)
	s := New(ex, nil, book, nil, trades, klines, nil, Config{}, zerolog.Nop())

	s.route(context.Background(), Message{Type: MessageBookDelta, Delta: orderbook.Delta{MarketID: 1, FirstUpdateID: 5, LastUpdateID: 5}})
}

// fakeOrderBookFetcher satisfies OrderBookFetcher for resync tests.
type fakeOrderBookFetcher struct {
	snap model.OrderBookSnapshot
	err  error
	hits int
}

func (f *fakeOrderBookFetcher) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error) {
	f.hits++
	return f.snap, f.err
}

func TestRouteBookDeltaGapTriggersResync(t *testing.T) {
	ex := mock.New("mock")
	book := orderbook.New(10)
	trades := queue.New[model.Trade](10, nil)
	klines := queue.New[model.Candle](10, nil)
	book.LoadSnapshot(model.OrderBookSnapshot{MarketID: 1, UpdateID: 105})

	fetcher := &fakeOrderBookFetcher{snap: model.OrderBookSnapshot{UpdateID: 200}}
	s := New(ex, nil, book, fetcher, trades, klines, nil, Config{}, zerolog.Nop())

	s.route(context.Background(), Message{Type: MessageBookDelta, Delta: orderbook.Delta{
		MarketID: 1, Symbol: "XBT/USD", FirstUpdateID: 108, LastUpdateID: 110,
	}})

	require.Equal(t, 1, fetcher.hits)
	snap, ok := book.Snapshot(1)
	require.True(t, ok)
	require.Equal(t, int64(200), snap.UpdateID)
}
