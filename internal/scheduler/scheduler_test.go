package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New([]Job{{Name: "x", Interval: 0, Run: func(ctx context.Context) error { return nil }}}, zerolog.Nop())
	require.Error(t, err)
}

func TestStartRunsJobRepeatedlyUntilCanceled(t *testing.T) {
	var calls atomic.Int32
	job := Job{
		Name:     "poll",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	}
	s, err := New([]Job{job}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx)

	require.GreaterOrEqual(t, int(calls.Load()), 2)
}

func TestLastResultRecordsError(t *testing.T) {
	job := Job{
		Name:     "scan",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			return errors.New("boom")
		},
	}
	s, err := New([]Job{job}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx)

	res, ok := s.LastResult("scan")
	require.True(t, ok)
	require.Error(t, res.Err)
}
