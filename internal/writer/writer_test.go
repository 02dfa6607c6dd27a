package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/queue"
)

func TestFlushUpsertsFullBatch(t *testing.T) {
	q := queue.New[model.Candle](10, nil)
	for i := 0; i < 5; i++ {
		q.Push(model.Candle{Close: float64(i)})
	}

	var upserted []model.Candle
	upsert := func(ctx context.Context, batch []model.Candle) error {
		upserted = append(upserted, batch...)
		return nil
	}

	w := NewBatchWriter("candles", q, upsert, Config{BatchSize: 10}, nil, zerolog.Nop(), nil)
	w.flush(context.Background())

	require.Len(t, upserted, 5)
	require.Equal(t, 0, q.Len())
}

func TestFlushRequeuesOnFailureAndRetries(t *testing.T) {
	q := queue.New[model.Candle](10, nil)
	q.Push(model.Candle{Close: 1})
	q.Push(model.Candle{Close: 2})

	attempts := 0
	upsert := func(ctx context.Context, batch []model.Candle) error {
		attempts++
		return errors.New("connection reset")
	}

	w := NewBatchWriter("candles", q, upsert, Config{BatchSize: 10, MaxRetries: 3}, nil, zerolog.Nop(), nil)
	w.flush(context.Background())

	require.Equal(t, 1, attempts)
	require.Equal(t, 2, q.Len()) // re-enqueued for the next flush attempt
}

func TestFlushDeadLettersAfterMaxRetries(t *testing.T) {
	q := queue.New[model.Candle](10, nil)
	q.Push(model.Candle{Close: 1})

	var deadLetters []DeadLetter
	upsert := func(ctx context.Context, batch []model.Candle) error {
		return errors.New("still failing")
	}

	w := NewBatchWriter("candles", q, upsert, Config{BatchSize: 10, MaxRetries: 1}, nil, zerolog.Nop(), func(d DeadLetter) {
		deadLetters = append(deadLetters, d)
	})
	w.flush(context.Background())

	require.Len(t, deadLetters, 1)
	require.Equal(t, "candles", deadLetters[0].Table)
	require.Equal(t, 0, q.Len()) // not re-enqueued once dead-lettered
}

func TestFlushOnEmptyQueueIsNoop(t *testing.T) {
	q := queue.New[model.Candle](10, nil)
	called := false
	upsert := func(ctx context.Context, batch []model.Candle) error {
		called = true
		return nil
	}

	w := NewBatchWriter("candles", q, upsert, Config{}, nil, zerolog.Nop(), nil)
	w.flush(context.Background())
	require.False(t, called)
}
