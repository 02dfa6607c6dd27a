package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/ingestd/internal/backfill"
	"github.com/sawpanic/ingestd/internal/cache"
	"github.com/sawpanic/ingestd/internal/config"
	"github.com/sawpanic/ingestd/internal/exchange"
	"github.com/sawpanic/ingestd/internal/exchange/binance"
	"github.com/sawpanic/ingestd/internal/exchange/breaker"
	"github.com/sawpanic/ingestd/internal/exchange/kraken"
	"github.com/sawpanic/ingestd/internal/metrics"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/net/ratelimit"
	"github.com/sawpanic/ingestd/internal/orderbook"
	"github.com/sawpanic/ingestd/internal/quality"
	"github.com/sawpanic/ingestd/internal/queue"
	"github.com/sawpanic/ingestd/internal/rest"
	"github.com/sawpanic/ingestd/internal/scheduler"
	"github.com/sawpanic/ingestd/internal/secrets"
	"github.com/sawpanic/ingestd/internal/storage/postgres"
	"github.com/sawpanic/ingestd/internal/streamcollector"
	"github.com/sawpanic/ingestd/internal/writer"
)

func newRunCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), log)
		},
	}
}

func run(ctx context.Context, log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplySecrets(ctx, secrets.NewResolver(log))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	db, err := postgres.Open(ctx, cfg.Storage.DSN, cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, 5*time.Second)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	repos := db.Repository()

	var kv cache.Cache
	if cfg.Cache.RedisAddr != "" {
		kv = cache.NewRedis(cfg.Cache.RedisAddr, 0, 0)
	} else {
		kv = cache.New()
	}
	marketCache := cache.NewMarketIDCache(kv, time.Hour, m)

	limiters := ratelimit.NewManager()
	breakers := breaker.NewRegistry()

	metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metrics.Handler(promReg)}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()
	defer metricsSrv.Shutdown(context.Background())

	book := orderbook.New(50)
	var jobs []scheduler.Job
	var runners []func(context.Context) error

	for name, ex := range cfg.Exchanges {
		if !ex.Enabled {
			continue
		}
		adapter, streamAdapter, err := buildAdapter(name)
		if err != nil {
			log.Warn().Str("exchange", name).Err(err).Msg("skipping unknown exchange")
			continue
		}

		limiters.Register(name, ex.RateLimit.MinInterval(), ex.RateLimit.MaxConcurrent)
		breakers.Register(name, breaker.DefaultConfig())

		exRow, err := repos.Exchanges.Upsert(ctx, model.Exchange{Name: name, DisplayName: strings.Title(name)})
		if err != nil {
			return fmt.Errorf("upsert exchange %s: %w", name, err)
		}

		collector := &rest.Collector{
			Exchange: adapter,
			Limiters: limiters,
			Breakers: breakers,
			Errors:   repos.APIErrors,
			Policy: rest.RetryPolicy{
				Attempts:   ex.Retry.Attempts,
				Base:       ex.Retry.Base(),
				Max:        ex.Retry.Max(),
				Multiplier: ex.Retry.Multiplier,
			},
		}

		candleQueue := queue.New[model.Candle](cfg.Cache.QueueMaxLen, func(dropped model.Candle) {
			log.Warn().Str("exchange", name).Msg("dropped candle from full queue")
		})
		tradeQueue := queue.New[model.Trade](cfg.Cache.QueueMaxLen, func(dropped model.Trade) {
			log.Warn().Str("exchange", name).Msg("dropped trade from full queue")
		})

		writerCfg := writer.Config{BatchSize: ex.Writer.BatchSize, FlushInterval: ex.Writer.FlushInterval()}
		onDead := func(dl writer.DeadLetter) {
			log.Error().Str("table", dl.Table).Int("size", dl.Size).Err(dl.Err).Msg("batch dead-lettered")
		}
		candleWriter := writer.NewCandleWriter(candleQueue, repos.Candles, writerCfg, m, log, onDead)
		tradeWriter := writer.NewTradeWriter(tradeQueue, repos.Trades, writerCfg, m, log, onDead)
		runners = append(runners,
			func(ctx context.Context) error { candleWriter.Run(ctx); return nil },
			func(ctx context.Context) error { tradeWriter.Run(ctx); return nil },
		)

		marketIDs := make(map[string]int64, len(ex.Symbols))
		for _, symbol := range ex.Symbols {
			base, quote := splitSymbol(symbol)
			marketID, err := repos.Markets.Upsert(ctx, model.Market{
				ExchangeID: exRow, Symbol: symbol, Base: base, Quote: quote, Type: model.MarketSpot,
			})
			if err != nil {
				return fmt.Errorf("upsert market %s/%s: %w", name, symbol, err)
			}
			marketIDs[symbol] = marketID
			marketCache.Set(ctx, name, symbol, marketID)
		}

		symbols := ex.Symbols
		timeframes := ex.Timeframes
		jobs = append(jobs, scheduler.Job{
			Name:     fmt.Sprintf("%s.rest_poll", name),
			Interval: ex.RateLimit.MinInterval()*time.Duration(len(symbols)) + time.Minute,
			Run: func(ctx context.Context) error {
				return pollREST(ctx, collector, marketIDs, symbols, timeframes, candleQueue, tradeQueue, log)
			},
		})

		if streamAdapter != nil {
			decoder := kraken.NewStreamDecoder(marketIDs)
			sess := streamcollector.New(streamAdapter, decoder, book, collector, tradeQueue, candleQueue, m, streamcollector.Config{
				Markets:              symbols,
				HeartbeatInterval:    ex.WS.Heartbeat(),
				ReconnectBase:        ex.WS.ReconnectBase(),
				MaxReconnectAttempts: ex.WS.MaxAttempts,
			}, log)
			runners = append(runners, sess.Run)

			snapshotWriter := writer.NewSnapshotWriter(repos.OrderBooks, log)
			snapshotCache := cache.NewSnapshotCache(kv, 10*time.Second, m)
			jobs = append(jobs, scheduler.Job{
				Name:     fmt.Sprintf("%s.orderbook_snapshot", name),
				Interval: 5 * time.Second,
				Run: func(ctx context.Context) error {
					return persistSnapshots(ctx, book, marketIDs, snapshotWriter, snapshotCache)
				},
			})
		}

		qualityCfg := quality.DefaultConfig()
		qualityCfg.PriceJumpThreshold = ex.Quality.PriceJumpThreshold
		qualityCfg.VolumeSpikeSigma = ex.Quality.VolumeSpikeK
		qualityScanner := quality.New(qualityCfg, repos.Candles, repos.Quality, repos.BackfillTasks, log)
		jobs = append(jobs, scheduler.Job{
			Name:     fmt.Sprintf("%s.quality_scan", name),
			Interval: ex.Quality.ScanInterval(),
			Run: func(ctx context.Context) error {
				return scanQuality(ctx, qualityScanner, marketIDs, ex.Quality.Window())
			},
		})
	}

	sweeper := backfill.New(repos.BackfillTasks, 5, 10*time.Minute, m, log)
	jobs = append(jobs, scheduler.Job{
		Name:     "backfill_sweep",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		},
	})

	sched, err := scheduler.New(jobs, log)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	for _, r := range runners {
		r := r
		go func() {
			if err := r(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("component stopped unexpectedly")
			}
		}()
	}

	log.Info().Int("jobs", len(jobs)).Msg("ingestion pipeline started")
	return sched.Start(ctx)
}

func buildAdapter(name string) (exchange.Exchange, exchange.StreamExchange, error) {
	switch name {
	case "kraken":
		a := kraken.New("", "", 10*time.Second)
		return a, a, nil
	case "binance":
		a := binance.New("", "", 10*time.Second)
		return a, nil, nil // binance has no paired stream decoder yet; REST-only
	default:
		return nil, nil, fmt.Errorf("unsupported exchange %q", name)
	}
}

func pollREST(ctx context.Context, c *rest.Collector, marketIDs map[string]int64, symbols []string,
	timeframes []string, candles *queue.Queue[model.Candle], trades *queue.Queue[model.Trade], log zerolog.Logger) error {
	now := time.Now().UTC()
	for _, symbol := range symbols {
		marketID, ok := marketIDs[symbol]
		if !ok {
			continue
		}
		for _, tfStr := range timeframes {
			tf := model.Timeframe(tfStr)
			got, err := c.FetchCandles(ctx, symbol, tf, now.Add(-2*tf.Duration()), now)
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tfStr).Msg("candle fetch failed")
				continue
			}
			for i := range got {
				got[i].MarketID = marketID
				candles.Push(got[i])
			}
		}

		got, err := c.FetchTrades(ctx, symbol, now.Add(-time.Minute), now)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("trade fetch failed")
			continue
		}
		for i := range got {
			got[i].MarketID = marketID
			trades.Push(got[i])
		}
	}
	return nil
}

func persistSnapshots(ctx context.Context, book *orderbook.Reconstructor, marketIDs map[string]int64,
	w *writer.SnapshotWriter, c *cache.SnapshotCache) error {
	for _, marketID := range marketIDs {
		snap, ok := book.Snapshot(marketID)
		if !ok {
			continue
		}
		snap.Time = time.Now().UTC()
		if err := w.Persist(ctx, snap); err != nil {
			return err
		}
		c.Set(ctx, marketID, snap)
	}
	return nil
}

func scanQuality(ctx context.Context, s *quality.Scanner, marketIDs map[string]int64, window time.Duration) error {
	now := time.Now().UTC()
	tr := model.TimeRange{Start: now.Add(-window), End: now}
	for _, marketID := range marketIDs {
		if _, err := s.Scan(ctx, marketID, model.TF1m, tr); err != nil {
			return err
		}
	}
	return nil
}

var commonQuotes = []string{"USDT", "USDC", "USD", "EUR", "BTC", "ETH"}

// splitSymbol best-effort splits a native exchange symbol (no separator)
// into base/quote by matching the longest known quote currency suffix.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range commonQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, ""
}
