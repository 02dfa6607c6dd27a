// Package model holds the canonical data types shared by every component of
// the ingestion pipeline: exchanges, markets, candles, trades, order-book
// snapshots, backfill tasks, quality summaries, and error/event log rows.
package model

import "time"

// MarketType enumerates the kinds of instrument a Market can represent.
type MarketType string

const (
	MarketSpot   MarketType = "spot"
	MarketPerp   MarketType = "perp"
	MarketFuture MarketType = "future"
)

// Timeframe is a candle granularity, expressed as its wire string (e.g. "1m").
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// Duration returns the wall-clock span of one candle in this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// FinerTier returns the next finer timeframe that this one is rolled up
// from, and whether one exists.
func (tf Timeframe) FinerTier() (Timeframe, bool) {
	switch tf {
	case TF5m:
		return TF1m, true
	case TF15m:
		return TF5m, true
	case TF1h:
		return TF15m, true
	case TF1d:
		return TF1h, true
	default:
		return "", false
	}
}

// Exchange is the identity of a venue. Created once at bootstrap and never
// deleted while referenced by a Market.
type Exchange struct {
	ID          int64
	Name        string // stable lowercase slug, e.g. "binance"
	DisplayName string
}

// Market is a trading pair at an exchange. (ExchangeID, Symbol) is unique;
// Symbol is always stored in native exchange form (no separator).
type Market struct {
	ID         int64
	ExchangeID int64
	Symbol     string
	Base       string
	Quote      string
	Type       MarketType
}

// Candle is an OHLCV aggregate over a closed half-open interval
// [OpenTime, OpenTime+Δ). Only closed candles are ever constructed by the
// collectors; PrimaryKey is (MarketID, Timeframe, OpenTime).
type Candle struct {
	MarketID    int64
	Timeframe   Timeframe
	OpenTime    time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	BaseVolume  float64
	QuoteVolume float64
	TradeCount  int64
}

// Aligned reports whether OpenTime falls exactly on a Timeframe boundary.
func (c Candle) Aligned() bool {
	d := c.Timeframe.Duration()
	if d <= 0 {
		return false
	}
	return c.OpenTime.UTC().UnixMilli()%d.Milliseconds() == 0
}

// Valid reports whether the OHLC invariants hold.
func (c Candle) Valid() bool {
	return c.Low <= c.Open && c.Low <= c.High && c.Low <= c.Close &&
		c.High >= c.Open && c.High >= c.Close && c.BaseVolume >= 0
}

// TradeSide is the taker side of an execution.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is a single execution. Keyed by (MarketID, ExchangeTradeID) when the
// exchange supplies an id, else by (MarketID, Timestamp, Price, Quantity).
type Trade struct {
	MarketID        int64
	ExchangeTradeID string // empty if the venue does not supply one
	Timestamp       time.Time
	Price           float64
	Quantity        float64
	Side            TradeSide
}

// PriceLevel is one (price, quantity) rung of an order book side.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBookSnapshot is the stored, Top-N projection of a reconstructed book.
type OrderBookSnapshot struct {
	MarketID int64
	Time     time.Time
	UpdateID int64
	Bids     []PriceLevel // descending by price
	Asks     []PriceLevel // ascending by price
}

// BestBid returns the highest bid level, if any.
func (s OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level, if any.
func (s OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Mid returns the mid price between best bid and best ask.
func (s OrderBookSnapshot) Mid() (float64, bool) {
	bid, ok1 := s.BestBid()
	ask, ok2 := s.BestAsk()
	if !ok1 || !ok2 {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// SpreadBps returns the bid/ask spread in basis points of the mid price.
func (s OrderBookSnapshot) SpreadBps() (float64, bool) {
	bid, ok1 := s.BestBid()
	ask, ok2 := s.BestAsk()
	mid, ok3 := s.Mid()
	if !ok1 || !ok2 || !ok3 || mid == 0 {
		return 0, false
	}
	return (ask.Price - bid.Price) / mid * 10000, true
}

// TimeRange is a half-open [Start, End) window used by every range query.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// DataType enumerates the kinds of series a BackfillTask can target.
type DataType string

const (
	DataTypeOHLCV     DataType = "ohlcv"
	DataTypeTrades    DataType = "trades"
	DataTypeOrderBook DataType = "orderbook"
)

// TaskStatus is a BackfillTask's lifecycle state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// BackfillTask is a prioritized request to refetch a gap in a series.
type BackfillTask struct {
	ID            int64
	MarketID      int64
	DataType      DataType
	Timeframe     Timeframe
	Start         time.Time
	End           time.Time // half-open: [Start, End)
	Status        TaskStatus
	Priority      int
	RetryCount    int
	ExpectedCount int
	ActualCount   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QualitySummary is the per-(market, data type, timeframe, window) scoring
// row produced by the quality scanner.
type QualitySummary struct {
	ID             int64
	MarketID       int64
	DataType       DataType
	Timeframe      Timeframe
	WindowStart    time.Time
	WindowEnd      time.Time
	Expected       int
	Found          int
	Missing        int
	Duplicate      int
	OutOfOrder     int
	PriceJumps     int
	VolumeSpikes   int
	Score          float64
	Valid          bool
	Issues         []string
	ComputedAt     time.Time
}

// ErrorClass is the taxonomy used by API error logs (§7).
type ErrorClass string

const (
	ErrClassNetwork  ErrorClass = "network"
	ErrClassRateLim  ErrorClass = "rate_limited"
	ErrClassTimeout  ErrorClass = "timeout"
	ErrClassExchange ErrorClass = "exchange_error"
	ErrClassParse    ErrorClass = "parse_error"
	ErrClassServer   ErrorClass = "server_error"
)

// APIErrorLog is an append-only record of a failed upstream call.
type APIErrorLog struct {
	ID         int64
	Exchange   string
	Endpoint   string
	Class      ErrorClass
	Code       int
	Message    string
	Parameters string // JSON-encoded request parameters, for audit
	Timestamp  time.Time
}

// CriticalEvent flags a time range during which retention pruning must be
// suppressed for the affected markets.
type CriticalEvent struct {
	ID             int64
	Name           string
	Kind           string
	Start          time.Time
	End            time.Time
	AffectedMarket []int64
	PreserveRaw    bool
}
