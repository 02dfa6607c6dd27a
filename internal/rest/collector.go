// Package rest implements the REST Collector: per-exchange rate-limited,
// circuit-broken, retrying fetches of candles, trades, and order-book
// snapshots, normalized into the canonical model and handed to a Sink.
package rest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sawpanic/ingestd/internal/exchange"
	"github.com/sawpanic/ingestd/internal/exchange/breaker"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/net/ratelimit"
)

// ErrorSink receives a record of every call that exhausts its retry budget,
// for the append-only API error log (§7).
type ErrorSink interface {
	RecordAPIError(ctx context.Context, entry model.APIErrorLog) error
}

// Collector wraps one exchange's adapter with rate limiting, circuit
// breaking, and retry, and normalizes the results.
type Collector struct {
	Exchange exchange.Exchange
	Limiters *ratelimit.Manager
	Breakers *breaker.Registry
	Policy   RetryPolicy
	Errors   ErrorSink
	// SafetyMargin is subtracted from "now" when deciding whether a candle
	// is closed; defaults to one timeframe duration per call if zero.
	SafetyMargin time.Duration
}

func (c *Collector) name() string { return c.Exchange.Name() }

// call runs fn (already wrapped for retry) behind the exchange's rate
// limiter and circuit breaker.
func (c *Collector) call(ctx context.Context, endpoint string, fn func(ctx context.Context) (any, error)) (any, error) {
	release, err := c.Limiters.Acquire(ctx, c.name())
	if err != nil {
		return nil, err
	}
	defer release()

	return c.Breakers.Execute(c.name(), func() (any, error) {
		return fn(ctx)
	})
}

// FetchCandles fetches and normalizes closed candles in [start, end).
func (c *Collector) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	margin := c.SafetyMargin
	if margin <= 0 {
		margin = tf.Duration()
	}
	cutoff := time.Now().Add(-margin)
	if end.After(cutoff) {
		end = cutoff
	}

	v, err := withRetry(ctx, c.Policy, func(ctx context.Context) (any, error) {
		return c.call(ctx, "candles", func(ctx context.Context) (any, error) {
			return c.Exchange.FetchCandles(ctx, symbol, tf, start, end)
		})
	})
	if err != nil {
		c.logFailure(ctx, "candles", err)
		return nil, err
	}

	candles := v.([]model.Candle)
	closed := make([]model.Candle, 0, len(candles))
	for _, cd := range candles {
		if cd.OpenTime.Add(tf.Duration()).After(cutoff) {
			continue
		}
		if !cd.Valid() {
			log.Warn().Str("exchange", c.name()).Str("symbol", symbol).
				Time("open_time", cd.OpenTime).Msg("dropping candle failing OHLC invariants")
			continue
		}
		closed = append(closed, cd)
	}
	return closed, nil
}

// FetchTrades fetches and normalizes trades in [start, end).
func (c *Collector) FetchTrades(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	v, err := withRetry(ctx, c.Policy, func(ctx context.Context) (any, error) {
		return c.call(ctx, "trades", func(ctx context.Context) (any, error) {
			return c.Exchange.FetchTrades(ctx, symbol, start, end)
		})
	})
	if err != nil {
		c.logFailure(ctx, "trades", err)
		return nil, err
	}
	return v.([]model.Trade), nil
}

// FetchOrderBookSnapshot fetches the current order-book snapshot.
func (c *Collector) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error) {
	v, err := withRetry(ctx, c.Policy, func(ctx context.Context) (any, error) {
		return c.call(ctx, "orderbook", func(ctx context.Context) (any, error) {
			return c.Exchange.FetchOrderBookSnapshot(ctx, symbol, depth)
		})
	})
	if err != nil {
		c.logFailure(ctx, "orderbook", err)
		return model.OrderBookSnapshot{}, err
	}
	return v.(model.OrderBookSnapshot), nil
}

func (c *Collector) logFailure(ctx context.Context, endpoint string, err error) {
	if c.Errors == nil {
		return
	}
	ce, _ := err.(*model.CollectorError)
	entry := model.APIErrorLog{
		Exchange:  c.name(),
		Endpoint:  endpoint,
		Class:     model.ErrClassNetwork,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	if ce != nil {
		entry.Class = model.ErrorClass(ce.Kind)
		entry.Code = ce.StatusCode
	}
	if recErr := c.Errors.RecordAPIError(ctx, entry); recErr != nil {
		log.Error().Err(recErr).Str("exchange", c.name()).Msg("failed to record API error log")
	}
}
