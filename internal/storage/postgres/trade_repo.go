package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type tradeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradeRepo creates the Postgres-backed TradeRepo.
func NewTradeRepo(db *sqlx.DB, timeout time.Duration) *tradeRepo {
	return &tradeRepo{db: db, timeout: timeout}
}

// UpsertBatch upserts by (market_id, exchange_trade_id) when the venue
// supplies one, otherwise by (market_id, ts, price, qty) — the natural key
// the error-handling design assigns venues that omit trade ids.
func (r *tradeRepo) UpsertBatch(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/200+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (market_id, exchange_trade_id, ts, price, qty, side)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (market_id, exchange_trade_id) WHERE exchange_trade_id IS NOT NULL DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	fallback, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (market_id, exchange_trade_id, ts, price, qty, side)
		VALUES ($1, NULL, $2, $3, $4, $5)
		ON CONFLICT (market_id, ts, price, qty) WHERE exchange_trade_id IS NULL DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare fallback upsert: %w", err)
	}
	defer fallback.Close()

	for _, t := range trades {
		var execErr error
		if t.ExchangeTradeID != "" {
			_, execErr = stmt.ExecContext(ctx, t.MarketID, t.ExchangeTradeID, t.Timestamp, t.Price, t.Quantity, t.Side)
		} else {
			_, execErr = fallback.ExecContext(ctx, t.MarketID, t.Timestamp, t.Price, t.Quantity, t.Side)
		}
		if execErr != nil {
			return fmt.Errorf("upsert trade: %w", execErr)
		}
	}

	return tx.Commit()
}

// ListRange returns trades in [tr.Start, tr.End) ascending by timestamp.
func (r *tradeRepo) ListRange(ctx context.Context, marketID int64, tr model.TimeRange) ([]model.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT market_id, COALESCE(exchange_trade_id, ''), ts, price, qty, side
		FROM trades
		WHERE market_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`, marketID, tr.Start, tr.End)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.MarketID, &t.ExchangeTradeID, &t.Timestamp, &t.Price, &t.Quantity, &t.Side); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
