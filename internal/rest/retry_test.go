package rest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/model"
)

func TestWithRetryRateLimitedDoesNotConsumeBudget(t *testing.T) {
	// Attempts: 1 means a plain network error gets no retry at all; a
	// Retry-After-bearing 429 must still be allowed to retry past that.
	policy := RetryPolicy{Attempts: 1, Base: time.Millisecond, Max: time.Millisecond, Multiplier: 2}

	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, &model.CollectorError{Kind: model.KindRateLim, Exchange: "mock", Endpoint: "candles",
				StatusCode: 429, RetryAfter: 1}
		}
		return 42, nil
	}

	v, err := withRetry(context.Background(), policy, fn)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, calls, "explicit Retry-After 429s must not count against Attempts")
}

func TestWithRetryNetworkErrorConsumesBudget(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, Base: time.Millisecond, Max: time.Millisecond, Multiplier: 2}

	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 0, model.NewCollectorError(model.KindNetwork, "mock", "candles", 0, nil)
	}

	_, err := withRetry(context.Background(), policy, fn)
	require.Error(t, err)
	require.Equal(t, 2, calls, "Attempts bounds plain network-error retries")
}
