// Package kraken adapts Kraken's public REST and WebSocket APIs to the
// exchange.Exchange / exchange.StreamExchange contract. Rate limiting,
// circuit breaking, and retry are deliberately absent here — the REST
// collector layers those on via ratelimit.Manager and breaker.Registry so
// every adapter shares one resilience policy.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
)

const (
	defaultBaseURL = "https://api.kraken.com"
	defaultWSURL   = "wss://ws.kraken.com"
)

// Adapter is Kraken's Exchange implementation.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	wsURL      string
}

// New creates a Kraken adapter. baseURL and wsURL default to Kraken's public
// endpoints when empty, so tests can point Adapter at an httptest.Server.
func New(baseURL, wsURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		wsURL:      wsURL,
	}
}

func (a *Adapter) Name() string { return "kraken" }

func (a *Adapter) WSEndpoint() string { return a.wsURL }

// krakenResponse is Kraken's standard REST envelope: a list of error
// strings plus a result payload whose shape depends on the endpoint.
type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (a *Adapter) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/0/public/%s", a.baseURL, endpoint)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, model.NewCollectorError(model.KindNetwork, a.Name(), endpoint, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		kind := model.KindNetwork
		if ctx.Err() != nil {
			kind = model.KindTimeout
		}
		return nil, model.NewCollectorError(kind, a.Name(), endpoint, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewCollectorError(model.KindNetwork, a.Name(), endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, model.NewCollectorError(model.KindRateLim, a.Name(), endpoint, resp.StatusCode, nil)
	}
	if resp.StatusCode >= 500 {
		return nil, model.NewCollectorError(model.KindServer, a.Name(), endpoint, resp.StatusCode, fmt.Errorf("%s", body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewCollectorError(model.KindExchange, a.Name(), endpoint, resp.StatusCode, fmt.Errorf("%s", body))
	}

	var envelope krakenResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, model.NewCollectorError(model.KindParse, a.Name(), endpoint, resp.StatusCode, err)
	}
	if len(envelope.Error) > 0 {
		return nil, model.NewCollectorError(model.KindExchange, a.Name(), endpoint, resp.StatusCode, fmt.Errorf("%v", envelope.Error))
	}
	return envelope.Result, nil
}

// intervalMinutes maps a Timeframe to Kraken's OHLC interval parameter.
func intervalMinutes(tf model.Timeframe) (int, error) {
	switch tf {
	case model.TF1m:
		return 1, nil
	case model.TF5m:
		return 5, nil
	case model.TF15m:
		return 15, nil
	case model.TF1h:
		return 60, nil
	case model.TF1d:
		return 1440, nil
	default:
		return 0, fmt.Errorf("kraken: unsupported timeframe %q", tf)
	}
}

// FetchCandles fetches OHLC rows via the public OHLC endpoint. Kraken
// returns an open window of candles since `since`; the adapter filters to
// [start, end) and drops the still-open trailing candle.
func (a *Adapter) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	minutes, err := intervalMinutes(tf)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("pair", symbol)
	params.Set("interval", strconv.Itoa(minutes))
	params.Set("since", strconv.FormatInt(start.Unix(), 10))

	result, err := a.get(ctx, "OHLC", params)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, model.NewCollectorError(model.KindParse, a.Name(), "OHLC", 0, err)
	}

	var rows [][]any
	for key, v := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(v, &rows); err != nil {
			return nil, model.NewCollectorError(model.KindParse, a.Name(), "OHLC", 0, err)
		}
	}

	candles := make([]model.Candle, 0, len(rows))
	now := time.Now()
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		c, err := parseOHLCRow(symbol, tf, row)
		if err != nil {
			return nil, model.NewCollectorError(model.KindParse, a.Name(), "OHLC", 0, err)
		}
		if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
			continue
		}
		if !c.OpenTime.Add(tf.Duration()).Before(now) {
			continue // still-open candle
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseOHLCRow(symbol string, tf model.Timeframe, row []any) (model.Candle, error) {
	unix, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("bad OHLC row time field")
	}
	open, err := parseFloatField(row[1])
	if err != nil {
		return model.Candle{}, err
	}
	high, err := parseFloatField(row[2])
	if err != nil {
		return model.Candle{}, err
	}
	low, err := parseFloatField(row[3])
	if err != nil {
		return model.Candle{}, err
	}
	cls, err := parseFloatField(row[4])
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := parseFloatField(row[6])
	if err != nil {
		return model.Candle{}, err
	}
	count, _ := row[7].(float64)

	return model.Candle{
		Timeframe:  tf,
		OpenTime:   time.Unix(int64(unix), 0).UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      cls,
		BaseVolume: volume,
		TradeCount: int64(count),
	}, nil
}

func parseFloatField(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("bad OHLC numeric field")
	}
	return strconv.ParseFloat(s, 64)
}

// FetchTrades fetches recent trades via the public Trades endpoint.
func (a *Adapter) FetchTrades(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	params := url.Values{}
	params.Set("pair", symbol)
	params.Set("since", strconv.FormatInt(start.UnixNano(), 10))

	result, err := a.get(ctx, "Trades", params)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, model.NewCollectorError(model.KindParse, a.Name(), "Trades", 0, err)
	}

	var rows [][]any
	for key, v := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(v, &rows); err != nil {
			return nil, model.NewCollectorError(model.KindParse, a.Name(), "Trades", 0, err)
		}
	}

	trades := make([]model.Trade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		price, err := parseFloatField(row[0])
		if err != nil {
			continue
		}
		qty, err := parseFloatField(row[1])
		if err != nil {
			continue
		}
		ts, _ := row[2].(float64)
		side := model.SideBuy
		if dir, ok := row[3].(string); ok && dir == "s" {
			side = model.SideSell
		}
		t := model.Trade{
			Timestamp: time.Unix(int64(ts), int64((ts-float64(int64(ts)))*1e9)).UTC(),
			Price:     price,
			Quantity:  qty,
			Side:      side,
		}
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// FetchOrderBookSnapshot fetches the current book via the public Depth
// endpoint, truncated to depth levels per side.
func (a *Adapter) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("pair", symbol)
	if depth > 0 {
		params.Set("count", strconv.Itoa(depth))
	}

	result, err := a.get(ctx, "Depth", params)
	if err != nil {
		return model.OrderBookSnapshot{}, err
	}

	var raw map[string]struct {
		Asks [][]any `json:"asks"`
		Bids [][]any `json:"bids"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return model.OrderBookSnapshot{}, model.NewCollectorError(model.KindParse, a.Name(), "Depth", 0, err)
	}

	var book struct {
		Asks [][]any
		Bids [][]any
	}
	for _, v := range raw {
		book.Asks, book.Bids = v.Asks, v.Bids
	}

	snap := model.OrderBookSnapshot{Time: time.Now().UTC()}
	snap.Bids = parseLevels(book.Bids, depth)
	snap.Asks = parseLevels(book.Asks, depth)
	return snap, nil
}

func parseLevels(rows [][]any, depth int) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := parseFloatField(row[0])
		if err != nil {
			continue
		}
		qty, err := parseFloatField(row[1])
		if err != nil {
			continue
		}
		levels = append(levels, model.PriceLevel{Price: price, Quantity: qty})
		if depth > 0 && len(levels) >= depth {
			break
		}
	}
	return levels
}

// SubscribeFrames builds the trade and book subscription frames Kraken's
// WebSocket protocol expects after connecting.
func (a *Adapter) SubscribeFrames(symbol string) ([]any, error) {
	pair := strings.ToUpper(symbol)
	return []any{
		map[string]any{
			"event":        "subscribe",
			"pair":         []string{pair},
			"subscription": map[string]string{"name": "trade"},
		},
		map[string]any{
			"event":        "subscribe",
			"pair":         []string{pair},
			"subscription": map[string]string{"name": "book"},
		},
	}, nil
}
