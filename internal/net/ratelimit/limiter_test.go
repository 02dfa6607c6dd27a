package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterEnforcesMinInterval(t *testing.T) {
	l := New(50*time.Millisecond, 4)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := l.Acquire(ctx)
		require.NoError(t, err)
		release()
	}
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestLimiterEnforcesConcurrencyCap(t *testing.T) {
	l := New(0, 2)
	ctx := context.Background()

	r1, err := l.Acquire(ctx)
	require.NoError(t, err)
	r2, err := l.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r3, err := l.Acquire(ctx)
		require.NoError(t, err)
		close(acquired)
		r3()
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked while two permits are held")
	case <-time.After(30 * time.Millisecond):
	}

	r1()
	<-acquired
	r2()
}

func TestLimiterContextCancellation(t *testing.T) {
	l := New(0, 1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx)
	require.Error(t, err)
}

func TestManagerUnregisteredExchangePassesThrough(t *testing.T) {
	m := NewManager()
	release, err := m.Acquire(context.Background(), "unknown")
	require.NoError(t, err)
	release()
}

func TestManagerRegisteredExchangeEnforcesLimit(t *testing.T) {
	m := NewManager()
	m.Register("binance", 20*time.Millisecond, 1)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 2; i++ {
		release, err := m.Acquire(ctx, "binance")
		require.NoError(t, err)
		release()
	}
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
