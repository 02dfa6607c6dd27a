package quality

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/model"
)

type fakeCandleRepo struct {
	candles []model.Candle
}

func (r *fakeCandleRepo) UpsertBatch(ctx context.Context, candles []model.Candle) error { return nil }

func (r *fakeCandleRepo) ListRange(ctx context.Context, marketID int64, tf model.Timeframe, tr model.TimeRange) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range r.candles {
		if !c.OpenTime.Before(tr.Start) && c.OpenTime.Before(tr.End) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeQualityRepo struct {
	upserts []model.QualitySummary
}

func (r *fakeQualityRepo) Upsert(ctx context.Context, s model.QualitySummary) error {
	r.upserts = append(r.upserts, s)
	return nil
}

func (r *fakeQualityRepo) ListRecent(ctx context.Context, marketID int64, limit int) ([]model.QualitySummary, error) {
	return r.upserts, nil
}

type fakeBackfillRepo struct {
	created []model.BackfillTask
}

func (r *fakeBackfillRepo) Create(ctx context.Context, task model.BackfillTask) (int64, error) {
	r.created = append(r.created, task)
	return int64(len(r.created)), nil
}
func (r *fakeBackfillRepo) ListPending(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	return nil, nil
}
func (r *fakeBackfillRepo) ListFailed(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	return nil, nil
}
func (r *fakeBackfillRepo) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actualCount int, errMsg string) error {
	return nil
}

func candleAt(openTime time.Time, close float64, volume float64) model.Candle {
	return model.Candle{
		MarketID: 1, Timeframe: model.TF1m, OpenTime: openTime,
		Open: close, High: close, Low: close, Close: close, BaseVolume: volume,
	}
}

func TestScanHealthySeriesScoresPerfectAndCreatesNoTasks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []model.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, candleAt(start.Add(time.Duration(i)*time.Minute), 100, 10))
	}

	candleRepo := &fakeCandleRepo{candles: candles}
	qualityRepo := &fakeQualityRepo{}
	backfillRepo := &fakeBackfillRepo{}
	s := New(DefaultConfig(), candleRepo, qualityRepo, backfillRepo, zerolog.Nop())

	res, err := s.Scan(context.Background(), 1, model.TF1m, model.TimeRange{Start: start, End: start.Add(10 * time.Minute)})
	require.NoError(t, err)
	require.Equal(t, 100.0, res.Summary.Score)
	require.True(t, res.Summary.Valid)
	require.Empty(t, res.Gaps)
	require.Empty(t, backfillRepo.created)
}

func TestScanDetectsGapAndCreatesBackfillTask(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []model.Candle{
		candleAt(start, 100, 10),
		candleAt(start.Add(1*time.Minute), 100, 10),
		// gap: minutes 2,3 missing
		candleAt(start.Add(4*time.Minute), 100, 10),
	}

	candleRepo := &fakeCandleRepo{candles: candles}
	qualityRepo := &fakeQualityRepo{}
	backfillRepo := &fakeBackfillRepo{}
	s := New(DefaultConfig(), candleRepo, qualityRepo, backfillRepo, zerolog.Nop())

	res, err := s.Scan(context.Background(), 1, model.TF1m, model.TimeRange{Start: start, End: start.Add(5 * time.Minute)})
	require.NoError(t, err)
	require.Equal(t, 2, res.Summary.Missing)
	require.Len(t, res.Gaps, 1)
	require.Equal(t, start.Add(2*time.Minute), res.Gaps[0].Start)
	require.Equal(t, start.Add(4*time.Minute), res.Gaps[0].End)
	require.Len(t, backfillRepo.created, 1)
	require.Less(t, res.Summary.Score, 100.0)
}

func TestScanDetectsPriceJump(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []model.Candle{
		candleAt(start, 100, 10),
		candleAt(start.Add(1*time.Minute), 1000, 10), // >20% log jump
	}

	candleRepo := &fakeCandleRepo{candles: candles}
	qualityRepo := &fakeQualityRepo{}
	backfillRepo := &fakeBackfillRepo{}
	s := New(DefaultConfig(), candleRepo, qualityRepo, backfillRepo, zerolog.Nop())

	res, err := s.Scan(context.Background(), 1, model.TF1m, model.TimeRange{Start: start, End: start.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Summary.PriceJumps)
}
