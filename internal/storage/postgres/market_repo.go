package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type exchangeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewExchangeRepo creates the Postgres-backed ExchangeRepo.
func NewExchangeRepo(db *sqlx.DB, timeout time.Duration) *exchangeRepo {
	return &exchangeRepo{db: db, timeout: timeout}
}

func (r *exchangeRepo) Upsert(ctx context.Context, ex model.Exchange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO exchanges (name, display_name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id`, ex.Name, ex.DisplayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert exchange: %w", err)
	}
	return id, nil
}

func (r *exchangeRepo) GetByName(ctx context.Context, name string) (model.Exchange, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ex model.Exchange
	err := r.db.QueryRowxContext(ctx, `SELECT id, name, display_name FROM exchanges WHERE name = $1`, name).
		Scan(&ex.ID, &ex.Name, &ex.DisplayName)
	if err == sql.ErrNoRows {
		return model.Exchange{}, false, nil
	}
	if err != nil {
		return model.Exchange{}, false, fmt.Errorf("get exchange: %w", err)
	}
	return ex, true, nil
}

type marketRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMarketRepo creates the Postgres-backed MarketRepo.
func NewMarketRepo(db *sqlx.DB, timeout time.Duration) *marketRepo {
	return &marketRepo{db: db, timeout: timeout}
}

func (r *marketRepo) Upsert(ctx context.Context, m model.Market) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO markets (exchange_id, symbol, base, quote, type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (exchange_id, symbol) DO UPDATE SET base = EXCLUDED.base, quote = EXCLUDED.quote, type = EXCLUDED.type
		RETURNING id`, m.ExchangeID, m.Symbol, m.Base, m.Quote, m.Type).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert market: %w", err)
	}
	return id, nil
}

func (r *marketRepo) GetBySymbol(ctx context.Context, exchangeID int64, symbol string) (model.Market, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Market
	err := r.db.QueryRowxContext(ctx, `
		SELECT id, exchange_id, symbol, base, quote, type FROM markets
		WHERE exchange_id = $1 AND symbol = $2`, exchangeID, symbol).
		Scan(&m.ID, &m.ExchangeID, &m.Symbol, &m.Base, &m.Quote, &m.Type)
	if err == sql.ErrNoRows {
		return model.Market{}, false, nil
	}
	if err != nil {
		return model.Market{}, false, fmt.Errorf("get market: %w", err)
	}
	return m, true, nil
}

func (r *marketRepo) List(ctx context.Context) ([]model.Market, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT id, exchange_id, symbol, base, quote, type FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var out []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.ExchangeID, &m.Symbol, &m.Base, &m.Quote, &m.Type); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
