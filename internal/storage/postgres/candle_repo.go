package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type candleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCandleRepo creates the Postgres-backed CandleRepo.
func NewCandleRepo(db *sqlx.DB, timeout time.Duration) *candleRepo {
	return &candleRepo{db: db, timeout: timeout}
}

// UpsertBatch writes candles transactionally, upserting on the
// (market_id, timeframe, open_time) primary key so repeated overlapping
// fetches are idempotent (§4.1 Correctness).
func (r *candleRepo) UpsertBatch(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(candles)/200+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (market_id, timeframe, open_time, open, high, low, close, base_volume, quote_volume, trade_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (market_id, timeframe, open_time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			base_volume = EXCLUDED.base_volume, quote_volume = EXCLUDED.quote_volume, trade_count = EXCLUDED.trade_count`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.MarketID, c.Timeframe, c.OpenTime,
			c.Open, c.High, c.Low, c.Close, c.BaseVolume, c.QuoteVolume, c.TradeCount); err != nil {
			return fmt.Errorf("upsert candle: %w", err)
		}
	}

	return tx.Commit()
}

// ListRange returns candles in [tr.Start, tr.End) ascending by open_time.
func (r *candleRepo) ListRange(ctx context.Context, marketID int64, tf model.Timeframe, tr model.TimeRange) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT market_id, timeframe, open_time, open, high, low, close, base_volume, quote_volume, trade_count
		FROM candles
		WHERE market_id = $1 AND timeframe = $2 AND open_time >= $3 AND open_time < $4
		ORDER BY open_time ASC`, marketID, tf, tr.Start, tr.End)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.MarketID, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close,
			&c.BaseVolume, &c.QuoteVolume, &c.TradeCount); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
