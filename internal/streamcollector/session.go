// Package streamcollector maintains one multiplexed WebSocket session per
// exchange, normalizes incoming frames via a Decoder, and feeds bounded
// drop-oldest queues that the batch writer drains. The session is
// exchange-agnostic: transport, state machine, heartbeat, and reconnect
// backoff live here, while address/wire-format concerns stay in the
// decoder.
package streamcollector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/ingestd/internal/exchange"
	"github.com/sawpanic/ingestd/internal/metrics"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/orderbook"
	"github.com/sawpanic/ingestd/internal/queue"
)

// State is one node of the session's connection state machine (§4.2).
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Live
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config tunes the session's subscription batching, heartbeat, and
// reconnect behavior.
type Config struct {
	Markets              []string
	SubscribeBatchSize   int           // frames per write burst; default 10
	SubscribeAckTimeout  time.Duration // default 10s
	HeartbeatInterval    time.Duration // default 30s
	HeartbeatTimeout     time.Duration // default 10s (pong grace period)
	ReconnectBase        time.Duration // default 1s
	ReconnectMax         time.Duration // default 30s
	MaxReconnectAttempts int           // 0 = unlimited
	OrderBookDepth       int           // levels fetched on resync; default 50
}

func (c Config) withDefaults() Config {
	if c.SubscribeBatchSize <= 0 {
		c.SubscribeBatchSize = 10
	}
	if c.SubscribeAckTimeout <= 0 {
		c.SubscribeAckTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.OrderBookDepth <= 0 {
		c.OrderBookDepth = 50
	}
	return c
}

// OrderBookFetcher refetches a fresh order-book snapshot to resync the
// reconstructor after a detected sequence gap (§4.3 step 1). *rest.Collector
// satisfies this.
type OrderBookFetcher interface {
	FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error)
}

// Session is one exchange's multiplexed WebSocket connection.
type Session struct {
	ex      exchange.StreamExchange
	decoder Decoder
	book    *orderbook.Reconstructor
	rest    OrderBookFetcher
	trades  *queue.Queue[model.Trade]
	klines  *queue.Queue[model.Candle]
	metrics *metrics.Registry
	cfg     Config
	log     zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastSeen time.Time
}

// New constructs a Session. trades/klines are the destination queues the
// batch writer drains; book receives order-book deltas directly. rest is
// used to refetch a fresh snapshot on a detected sequence gap; it may be nil,
// in which case a gap is logged but never resynced.
func New(ex exchange.StreamExchange, decoder Decoder, book *orderbook.Reconstructor, rest OrderBookFetcher,
	trades *queue.Queue[model.Trade], klines *queue.Queue[model.Candle],
	m *metrics.Registry, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		ex:      ex,
		decoder: decoder,
		book:    book,
		rest:    rest,
		trades:  trades,
		klines:  klines,
		metrics: m,
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "stream_collector").Str("exchange", ex.Name()).Logger(),
	}
}

// State returns the session's current state machine node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Debug().Str("state", st.String()).Msg("session state transition")
}

// Run drives the session until ctx is canceled or reconnect attempts are
// exhausted, in which case it enters Failed and returns the last error.
func (s *Session) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(Connecting)
		err := s.connectAndServe(ctx)
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}

		attempts++
		if s.metrics != nil {
			s.metrics.StreamReconnects.WithLabelValues(s.ex.Name()).Inc()
		}
		if s.cfg.MaxReconnectAttempts > 0 && attempts > s.cfg.MaxReconnectAttempts {
			s.setState(Failed)
			return fmt.Errorf("stream collector %s: exceeded max reconnect attempts: %w", s.ex.Name(), err)
		}

		s.setState(Reconnecting)
		delay := backoff(attempts, s.cfg.ReconnectBase, s.cfg.ReconnectMax)
		s.log.Warn().Err(err).Dur("delay", delay).Int("attempt", attempts).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff returns an exponential delay with jitter, bounded by max.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d - jitter/2 + jitter
}

// connectAndServe dials, subscribes, and serves one connection lifetime. It
// returns when the connection closes, a protocol error occurs, or the
// heartbeat times out; the returned error is nil only on clean shutdown via
// ctx cancellation.
func (s *Session) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.ex.WSEndpoint(), nil)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StreamConnected.WithLabelValues(s.ex.Name()).Set(0)
		}
		return fmt.Errorf("dial %s: %w", s.ex.WSEndpoint(), err)
	}
	s.mu.Lock()
	s.conn = conn
	s.lastSeen = time.Now()
	s.mu.Unlock()
	defer conn.Close()

	s.setState(Subscribing)
	if err := s.subscribeAll(ctx); err != nil {
		return err
	}

	s.setState(Live)
	if s.metrics != nil {
		s.metrics.StreamConnected.WithLabelValues(s.ex.Name()).Set(1)
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.StreamConnected.WithLabelValues(s.ex.Name()).Set(0)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go s.heartbeatLoop(ctx, done)

	return s.messageLoop(ctx)
}

// subscribeAll fans out SubscribeFrames for every configured market, sent in
// bursts of SubscribeBatchSize to stay under the exchange's per-message
// argument cap.
func (s *Session) subscribeAll(ctx context.Context) error {
	var frames []any
	for _, market := range s.cfg.Markets {
		fs, err := s.ex.SubscribeFrames(market)
		if err != nil {
			return fmt.Errorf("build subscribe frames for %s: %w", market, err)
		}
		frames = append(frames, fs...)
	}

	for i := 0; i < len(frames); i += s.cfg.SubscribeBatchSize {
		end := i + s.cfg.SubscribeBatchSize
		if end > len(frames) {
			end = len(frames)
		}
		for _, f := range frames[i:end] {
			if err := s.writeJSON(f); err != nil {
				return fmt.Errorf("send subscribe frame: %w", err)
			}
		}
	}
	return nil
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

// heartbeatLoop pings on HeartbeatInterval and forces the connection closed
// (triggering reconnect in messageLoop) if no message of any kind has been
// seen within HeartbeatInterval+HeartbeatTimeout.
func (s *Session) heartbeatLoop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			pingErr := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()

			s.mu.Lock()
			stale := time.Since(s.lastSeen) > s.cfg.HeartbeatInterval+s.cfg.HeartbeatTimeout
			s.mu.Unlock()

			if pingErr != nil || stale {
				s.log.Warn().Bool("stale", stale).Err(pingErr).Msg("heartbeat failed, forcing reconnect")
				s.conn.Close()
				return
			}
		}
	}
}

// messageLoop reads frames until the connection errors or closes, routing
// each decoded message to its destination queue or the order book.
func (s *Session) messageLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.HeartbeatTimeout))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		s.mu.Lock()
		s.lastSeen = time.Now()
		s.mu.Unlock()

		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := s.decoder.Decode(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}
		s.route(ctx, msg)
	}
}

func (s *Session) route(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageTrade:
		s.trades.Push(msg.Trade)
	case MessageKline:
		if !msg.Closed {
			return // only closed kline updates are forwarded to storage (§4.2)
		}
		s.klines.Push(msg.Kline)
	case MessageBookDelta:
		market := fmt.Sprintf("%d", msg.Delta.MarketID)
		if err := s.book.ApplyDelta(msg.Delta); err != nil {
			if s.metrics != nil {
				s.metrics.OrderBookResyncs.WithLabelValues(s.ex.Name(), market).Inc()
			}
			s.log.Warn().Err(err).Int64("market_id", msg.Delta.MarketID).Msg("sequence gap, resyncing order book")
			s.resync(ctx, msg.Delta.MarketID, msg.Delta.Symbol)
		}
	}
}

// resync refetches a fresh REST snapshot and loads it into the book,
// recovering from a sequence gap (§4.3 step 1). A missing fetcher or symbol
// leaves the book stale until the next successful delta reestablishes
// continuity implicitly via a later resync.
func (s *Session) resync(ctx context.Context, marketID int64, symbol string) {
	if s.rest == nil || symbol == "" {
		return
	}
	snap, err := s.rest.FetchOrderBookSnapshot(ctx, symbol, s.cfg.OrderBookDepth)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("order book resync fetch failed")
		return
	}
	snap.MarketID = marketID
	s.book.LoadSnapshot(snap)
}
