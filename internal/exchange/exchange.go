// Package exchange defines the adapter contract each venue implements, so the
// REST collector, stream collector, and backfill engine can treat binance,
// kraken, and the mock test venue identically.
package exchange

import (
	"context"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
)

// Exchange is one venue's REST surface, normalized to canonical model types.
// Implementations must not retry or rate-limit internally — that is the
// REST collector's job, layered on top via ratelimit.Manager and
// breaker.Registry.
type Exchange interface {
	// Name is the stable lowercase slug used as the map key everywhere
	// (config, rate limiter registry, breaker registry, metrics labels).
	Name() string

	// FetchCandles returns closed candles in [start, end) for the given
	// market symbol and timeframe, ascending by OpenTime.
	FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error)

	// FetchTrades returns trades in [start, end), ascending by Timestamp.
	FetchTrades(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error)

	// FetchOrderBookSnapshot returns the current order book snapshot,
	// truncated to depth levels per side.
	FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error)
}

// StreamExchange is the subset of venues that also offer a WebSocket feed;
// implemented separately from Exchange since the mock test venue and some
// REST-only adapters need not support it.
type StreamExchange interface {
	Exchange

	// WSEndpoint returns the WebSocket URL to dial for streaming updates.
	WSEndpoint() string

	// SubscribeFrames returns the wire messages to send after connecting in
	// order to subscribe to trades and order-book deltas for symbol.
	SubscribeFrames(symbol string) ([]any, error)
}
