package rest

import (
	"context"
	"testing"
	"time"

	"github.com/sawpanic/ingestd/internal/exchange/breaker"
	"github.com/sawpanic/ingestd/internal/exchange/mock"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/net/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	entries []model.APIErrorLog
}

func (s *fakeSink) RecordAPIError(ctx context.Context, entry model.APIErrorLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestCollector(ex *mock.Adapter, sink ErrorSink) *Collector {
	limiters := ratelimit.NewManager()
	breakers := breaker.NewRegistry()
	return &Collector{
		Exchange: ex,
		Limiters: limiters,
		Breakers: breakers,
		Policy:   RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 10 * time.Millisecond, Multiplier: 2},
		Errors:   sink,
	}
}

func TestFetchCandlesDropsUnclosedCandles(t *testing.T) {
	ex := mock.New("mock")
	now := time.Now()
	ex.Candles = []model.Candle{
		{Timeframe: model.TF1m, OpenTime: now.Add(-2 * time.Minute), Open: 1, High: 2, Low: 1, Close: 1.5, BaseVolume: 1},
		{Timeframe: model.TF1m, OpenTime: now, Open: 1, High: 2, Low: 1, Close: 1.5, BaseVolume: 1}, // still open
	}
	c := newTestCollector(ex, nil)

	out, err := c.FetchCandles(context.Background(), "X", model.TF1m, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestFetchCandlesRetriesThenSucceeds(t *testing.T) {
	ex := mock.New("mock")
	ex.FailNext = model.NewCollectorError(model.KindNetwork, "mock", "candles", 0, nil)
	c := newTestCollector(ex, nil)

	_, err := c.FetchCandles(context.Background(), "X", model.TF1m, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, ex.CallCount("FetchCandles"))
}

func TestFetchTradesAbortsOnNonRetryableAndLogsError(t *testing.T) {
	ex := mock.New("mock")
	ex.FailNext = model.NewCollectorError(model.KindParse, "mock", "trades", 0, nil)
	sink := &fakeSink{}
	c := newTestCollector(ex, sink)

	_, err := c.FetchTrades(context.Background(), "X", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.Equal(t, 1, ex.CallCount("FetchTrades"), "parse errors must not retry")
	require.Len(t, sink.entries, 1)
	require.Equal(t, model.ErrClassParse, sink.entries[0].Class)
}
