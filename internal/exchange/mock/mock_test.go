package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/stretchr/testify/require"
)

func TestFetchCandlesFiltersByTimeframeAndRange(t *testing.T) {
	a := New("")
	base := time.Now()
	a.Candles = []model.Candle{
		{Timeframe: model.TF1m, OpenTime: base},
		{Timeframe: model.TF1m, OpenTime: base.Add(time.Minute)},
		{Timeframe: model.TF5m, OpenTime: base},
	}

	out, err := a.FetchCandles(context.Background(), "X", model.TF1m, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestFailNextAppliesOnceThenClears(t *testing.T) {
	a := New("")
	a.FailNext = errors.New("boom")

	_, err := a.FetchTrades(context.Background(), "X", time.Time{}, time.Time{})
	require.Error(t, err)

	_, err = a.FetchTrades(context.Background(), "X", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Equal(t, 2, a.CallCount("FetchTrades"))
}
