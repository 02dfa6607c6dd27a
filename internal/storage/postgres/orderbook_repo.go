package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type orderBookRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOrderBookRepo creates the Postgres-backed OrderBookSnapshotRepo. Levels
// are stored as JSONB since their count varies with configured depth.
func NewOrderBookRepo(db *sqlx.DB, timeout time.Duration) *orderBookRepo {
	return &orderBookRepo{db: db, timeout: timeout}
}

func (r *orderBookRepo) Insert(ctx context.Context, snap model.OrderBookSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return fmt.Errorf("marshal asks: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO order_book_snapshots (market_id, ts, update_id, bids, asks)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.MarketID, snap.Time, snap.UpdateID, bids, asks)
	if err != nil {
		return fmt.Errorf("insert order book snapshot: %w", err)
	}
	return nil
}

func (r *orderBookRepo) Latest(ctx context.Context, marketID int64) (model.OrderBookSnapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snap model.OrderBookSnapshot
	var bids, asks []byte
	err := r.db.QueryRowxContext(ctx, `
		SELECT market_id, ts, update_id, bids, asks
		FROM order_book_snapshots
		WHERE market_id = $1
		ORDER BY ts DESC
		LIMIT 1`, marketID).Scan(&snap.MarketID, &snap.Time, &snap.UpdateID, &bids, &asks)
	if err == sql.ErrNoRows {
		return model.OrderBookSnapshot{}, false, nil
	}
	if err != nil {
		return model.OrderBookSnapshot{}, false, fmt.Errorf("query latest order book: %w", err)
	}
	if err := json.Unmarshal(bids, &snap.Bids); err != nil {
		return model.OrderBookSnapshot{}, false, fmt.Errorf("unmarshal bids: %w", err)
	}
	if err := json.Unmarshal(asks, &snap.Asks); err != nil {
		return model.OrderBookSnapshot{}, false, fmt.Errorf("unmarshal asks: %w", err)
	}
	return snap, true, nil
}
