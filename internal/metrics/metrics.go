// Package metrics exposes the ingestion pipeline's Prometheus instrumentation
// and the /metrics HTTP handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the pipeline's components record against.
type Registry struct {
	CollectorCallDuration *prometheus.HistogramVec
	CollectorCallsTotal   *prometheus.CounterVec
	CollectorErrorsTotal  *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	StreamConnected  *prometheus.GaugeVec
	StreamReconnects *prometheus.CounterVec
	StreamMessageLag *prometheus.HistogramVec

	OrderBookResyncs *prometheus.CounterVec

	WriterBatchSize     *prometheus.HistogramVec
	WriterFlushDuration *prometheus.HistogramVec
	WriterDeadLetters   *prometheus.CounterVec

	QualityScore    *prometheus.GaugeVec
	BackfillPending *prometheus.GaugeVec
	BackfillTasksDone *prometheus.CounterVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates and registers every metric against reg.
func New(reg *prometheus.Registry) *Registry {
	m := &Registry{
		CollectorCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestd_collector_call_duration_seconds",
			Help:    "Duration of REST collector calls by exchange and endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"exchange", "endpoint"}),

		CollectorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_collector_calls_total",
			Help: "Total REST collector calls by exchange, endpoint, and result",
		}, []string{"exchange", "endpoint", "result"}),

		CollectorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_collector_errors_total",
			Help: "Total REST collector errors by exchange and error kind",
		}, []string{"exchange", "kind"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestd_breaker_state",
			Help: "Circuit breaker state per exchange (0=closed, 1=half-open, 2=open)",
		}, []string{"exchange"}),

		StreamConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestd_stream_connected",
			Help: "Whether the stream collector session is live (1) or not (0)",
		}, []string{"exchange"}),

		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_stream_reconnects_total",
			Help: "Total stream collector reconnect attempts by exchange",
		}, []string{"exchange"}),

		StreamMessageLag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestd_stream_message_lag_seconds",
			Help:    "Age of stream messages when processed",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"exchange"}),

		OrderBookResyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_orderbook_resyncs_total",
			Help: "Total order book resyncs triggered by a sequence gap",
		}, []string{"exchange", "market"}),

		WriterBatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestd_writer_batch_size",
			Help:    "Row count per flushed batch by table",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500},
		}, []string{"table"}),

		WriterFlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestd_writer_flush_duration_seconds",
			Help:    "Duration of batch writer flushes by table",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),

		WriterDeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_writer_dead_letters_total",
			Help: "Total batches that exhausted flush retries and were dead-lettered",
		}, []string{"table"}),

		QualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestd_quality_score",
			Help: "Most recent quality score per market/data type/timeframe",
		}, []string{"market", "data_type", "timeframe"}),

		BackfillPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestd_backfill_pending_tasks",
			Help: "Pending backfill task count per market",
		}, []string{"market"}),

		BackfillTasksDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_backfill_tasks_total",
			Help: "Completed backfill tasks by market and outcome",
		}, []string{"market", "outcome"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_cache_hits_total",
			Help: "Cache hits by cache type",
		}, []string{"cache_type"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_cache_misses_total",
			Help: "Cache misses by cache type",
		}, []string{"cache_type"}),
	}

	reg.MustRegister(
		m.CollectorCallDuration, m.CollectorCallsTotal, m.CollectorErrorsTotal,
		m.BreakerState, m.StreamConnected, m.StreamReconnects, m.StreamMessageLag,
		m.OrderBookResyncs, m.WriterBatchSize, m.WriterFlushDuration, m.WriterDeadLetters,
		m.QualityScore, m.BackfillPending, m.BackfillTasksDone, m.CacheHits, m.CacheMisses,
	)
	return m
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
