package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/stretchr/testify/require"
)

func TestFetchCandlesFiltersToRangeAndDropsOpenCandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"error": [],
			"result": {
				"XBTUSD": [
					[1000, "100.0", "101.0", "99.0", "100.5", "100.2", "10.0", 5],
					[1060, "100.5", "102.0", "100.0", "101.5", "101.0", "12.0", 7]
				],
				"last": "1060"
			}
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", 0)
	candles, err := a.FetchCandles(context.Background(), "XBTUSD", model.TF1m, time.Unix(0, 0), time.Unix(2000, 0))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	require.Equal(t, 100.0, candles[0].Open)
}

func TestGetClassifiesRateLimitAndServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := New(srv.URL, "", 0)
	_, err := a.FetchOrderBookSnapshot(context.Background(), "XBTUSD", 10)
	require.Error(t, err)
	require.Equal(t, model.KindRateLim, model.ClassOf(err))
}

func TestFetchOrderBookSnapshotParsesLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"error": [],
			"result": {
				"XBTUSD": {
					"asks": [["101.0", "1.5", 1000], ["102.0", "2.0", 1000]],
					"bids": [["100.0", "1.0", 1000], ["99.0", "3.0", 1000]]
				}
			}
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", 0)
	snap, err := a.FetchOrderBookSnapshot(context.Background(), "XBTUSD", 10)
	require.NoError(t, err)
	bestBid, ok := snap.BestBid()
	require.True(t, ok)
	require.Equal(t, 100.0, bestBid.Price)
	bestAsk, ok := snap.BestAsk()
	require.True(t, ok)
	require.Equal(t, 101.0, bestAsk.Price)
}
