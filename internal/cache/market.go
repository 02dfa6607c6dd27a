package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/ingestd/internal/metrics"
	"github.com/sawpanic/ingestd/internal/model"
)

// MarketIDCache resolves (exchange, symbol) -> market id, caching the batch
// writer's repeated lookups per §4.4 ("cache the id").
type MarketIDCache struct {
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Registry
}

// NewMarketIDCache wraps cache for market id lookups.
func NewMarketIDCache(c Cache, ttl time.Duration, m *metrics.Registry) *MarketIDCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MarketIDCache{cache: c, ttl: ttl, metrics: m}
}

func marketKey(exchange, symbol string) string {
	return fmt.Sprintf("market:%s:%s", exchange, symbol)
}

// Get returns the cached market id, or false on a miss.
func (m *MarketIDCache) Get(ctx context.Context, exchange, symbol string) (int64, bool) {
	b, ok := m.cache.Get(ctx, marketKey(exchange, symbol))
	if m.metrics != nil {
		if ok {
			m.metrics.CacheHits.WithLabelValues("market_id").Inc()
		} else {
			m.metrics.CacheMisses.WithLabelValues("market_id").Inc()
		}
	}
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return 0, false
	}
	return id, true
}

// Set caches a resolved market id.
func (m *MarketIDCache) Set(ctx context.Context, exchange, symbol string, id int64) {
	b, err := json.Marshal(id)
	if err != nil {
		return
	}
	m.cache.Set(ctx, marketKey(exchange, symbol), b, m.ttl)
}

// SnapshotCache caches the order book reconstructor's latest Top-N
// projection per market, for read paths that do not want to hit Postgres
// for a value the reconstructor already holds live in memory.
type SnapshotCache struct {
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Registry
}

// NewSnapshotCache wraps cache for order book snapshot reads.
func NewSnapshotCache(c Cache, ttl time.Duration, m *metrics.Registry) *SnapshotCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SnapshotCache{cache: c, ttl: ttl, metrics: m}
}

func snapshotKey(marketID int64) string {
	return fmt.Sprintf("orderbook:%d", marketID)
}

// Get returns the cached snapshot, or false on a miss.
func (s *SnapshotCache) Get(ctx context.Context, marketID int64) (model.OrderBookSnapshot, bool) {
	b, ok := s.cache.Get(ctx, snapshotKey(marketID))
	if s.metrics != nil {
		if ok {
			s.metrics.CacheHits.WithLabelValues("orderbook_snapshot").Inc()
		} else {
			s.metrics.CacheMisses.WithLabelValues("orderbook_snapshot").Inc()
		}
	}
	if !ok {
		return model.OrderBookSnapshot{}, false
	}
	var snap model.OrderBookSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return model.OrderBookSnapshot{}, false
	}
	return snap, true
}

// Set caches the latest snapshot for marketID.
func (s *SnapshotCache) Set(ctx context.Context, marketID int64, snap model.OrderBookSnapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.cache.Set(ctx, snapshotKey(marketID), b, s.ttl)
}
