// Package storage defines the repository interfaces the batch writer,
// quality engine, and backfill engine persist through, decoupling them from
// the concrete Postgres implementation in storage/postgres.
package storage

import (
	"context"

	"github.com/sawpanic/ingestd/internal/model"
)

// ExchangeRepo persists the small, rarely-changing set of known venues.
type ExchangeRepo interface {
	Upsert(ctx context.Context, ex model.Exchange) (int64, error)
	GetByName(ctx context.Context, name string) (model.Exchange, bool, error)
}

// MarketRepo persists the (exchange, symbol) trading pairs being ingested.
type MarketRepo interface {
	Upsert(ctx context.Context, m model.Market) (int64, error)
	GetBySymbol(ctx context.Context, exchangeID int64, symbol string) (model.Market, bool, error)
	List(ctx context.Context) ([]model.Market, error)
}

// CandleRepo persists OHLCV candles, upserted by (MarketID, Timeframe,
// OpenTime) so repeated overlapping fetches are idempotent (§4.1
// Correctness).
type CandleRepo interface {
	UpsertBatch(ctx context.Context, candles []model.Candle) error
	ListRange(ctx context.Context, marketID int64, tf model.Timeframe, tr model.TimeRange) ([]model.Candle, error)
}

// TradeRepo persists executions, upserted by (MarketID, ExchangeTradeID)
// when supplied, else by (MarketID, Timestamp, Price, Quantity).
type TradeRepo interface {
	UpsertBatch(ctx context.Context, trades []model.Trade) error
	ListRange(ctx context.Context, marketID int64, tr model.TimeRange) ([]model.Trade, error)
}

// OrderBookSnapshotRepo persists the reconstructor's Top-N projections.
type OrderBookSnapshotRepo interface {
	Insert(ctx context.Context, snap model.OrderBookSnapshot) error
	Latest(ctx context.Context, marketID int64) (model.OrderBookSnapshot, bool, error)
}

// BackfillTaskRepo persists the backfill engine's task lifecycle (§4.5).
type BackfillTaskRepo interface {
	Create(ctx context.Context, task model.BackfillTask) (int64, error)
	ListPending(ctx context.Context, limit int) ([]model.BackfillTask, error)
	ListFailed(ctx context.Context, limit int) ([]model.BackfillTask, error)
	UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actualCount int, errMsg string) error
}

// QualitySummaryRepo persists the quality scanner's per-window scoring rows.
type QualitySummaryRepo interface {
	Upsert(ctx context.Context, s model.QualitySummary) error
	ListRecent(ctx context.Context, marketID int64, limit int) ([]model.QualitySummary, error)
}

// APIErrorLogRepo persists the append-only failed-call audit trail; it also
// satisfies rest.ErrorSink.
type APIErrorLogRepo interface {
	RecordAPIError(ctx context.Context, entry model.APIErrorLog) error
}

// CriticalEventRepo persists retention-suppression windows (§4.6).
type CriticalEventRepo interface {
	ActiveFor(ctx context.Context, marketID int64, tr model.TimeRange) ([]model.CriticalEvent, error)
}

// Repository aggregates every repo the pipeline depends on.
type Repository struct {
	Exchanges     ExchangeRepo
	Markets       MarketRepo
	Candles       CandleRepo
	Trades        TradeRepo
	OrderBooks    OrderBookSnapshotRepo
	BackfillTasks BackfillTaskRepo
	Quality       QualitySummaryRepo
	APIErrors     APIErrorLogRepo
	CriticalEvents CriticalEventRepo
}
