package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryTripsAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry()
	r.Register("binance", Config{
		MaxRequestsHalfOpen: 1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	})

	failing := func() (any, error) { return nil, errors.New("boom") }

	_, err := r.Execute("binance", failing)
	require.Error(t, err)
	_, err = r.Execute("binance", failing)
	require.Error(t, err)

	_, err = r.Execute("binance", func() (any, error) { return "ok", nil })
	require.Error(t, err, "breaker should now be open and reject without calling fn")
}

func TestRegistryUnregisteredExchangeRunsDirectly(t *testing.T) {
	r := NewRegistry()
	v, err := r.Execute("unregistered", func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)
}
