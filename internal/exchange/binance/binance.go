// Package binance adapts Binance's public REST and WebSocket APIs to the
// exchange.Exchange / exchange.StreamExchange contract. As with the kraken
// adapter, rate limiting, circuit breaking, and retry live one layer up in
// the REST collector.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
)

const (
	defaultBaseURL = "https://api.binance.com/api/v3"
	defaultWSURL   = "wss://stream.binance.com:9443/ws"
)

// Adapter is Binance's Exchange implementation.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	wsURL      string
}

// New creates a Binance adapter. baseURL and wsURL default to Binance's
// public endpoints when empty.
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

func (a *Adapter) Name() string { return "binance" }

func (a *Adapter) WSEndpoint() string { return a.wsURL }

func (a *Adapter) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", a.baseURL, endpoint)
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

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return nil, model.NewCollectorError(model.KindRateLim, a.Name(), endpoint, resp.StatusCode, nil)
	case resp.StatusCode >= 500:
		return nil, model.NewCollectorError(model.KindServer, a.Name(), endpoint, resp.StatusCode, fmt.Errorf("%s", body))
	case resp.StatusCode != http.StatusOK:
		return nil, model.NewCollectorError(model.KindExchange, a.Name(), endpoint, resp.StatusCode, fmt.Errorf("%s", body))
	}
	return body, nil
}

// wireInterval maps a Timeframe to Binance's kline interval parameter.
func wireInterval(tf model.Timeframe) (string, error) {
	switch tf {
	case model.TF1m:
		return "1m", nil
	case model.TF5m:
		return "5m", nil
	case model.TF15m:
		return "15m", nil
	case model.TF1h:
		return "1h", nil
	case model.TF1d:
		return "1d", nil
	default:
		return "", fmt.Errorf("binance: unsupported timeframe %q", tf)
	}
}

// FetchCandles fetches closed klines via GET /klines.
func (a *Adapter) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	interval, err := wireInterval(tf)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", "1000")

	body, err := a.get(ctx, "klines", params)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, model.NewCollectorError(model.KindParse, a.Name(), "klines", 0, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	now := time.Now()
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		c, err := parseKlineRow(tf, row)
		if err != nil {
			return nil, model.NewCollectorError(model.KindParse, a.Name(), "klines", 0, err)
		}
		if !c.OpenTime.Add(tf.Duration()).Before(now) {
			continue // still-open candle
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKlineRow(tf model.Timeframe, row []any) (model.Candle, error) {
	openMs, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("bad kline open time field")
	}
	open, err := parseStringField(row[1])
	if err != nil {
		return model.Candle{}, err
	}
	high, err := parseStringField(row[2])
	if err != nil {
		return model.Candle{}, err
	}
	low, err := parseStringField(row[3])
	if err != nil {
		return model.Candle{}, err
	}
	cls, err := parseStringField(row[4])
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := parseStringField(row[5])
	if err != nil {
		return model.Candle{}, err
	}
	quoteVolume, err := parseStringField(row[7])
	if err != nil {
		return model.Candle{}, err
	}
	count, _ := row[8].(float64)

	return model.Candle{
		Timeframe:   tf,
		OpenTime:    time.UnixMilli(int64(openMs)).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       cls,
		BaseVolume:  volume,
		QuoteVolume: quoteVolume,
		TradeCount:  int64(count),
	}, nil
}

func parseStringField(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("bad kline numeric field")
	}
	return strconv.ParseFloat(s, 64)
}

// FetchTrades fetches recent trades via GET /aggTrades.
func (a *Adapter) FetchTrades(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", "1000")

	body, err := a.get(ctx, "aggTrades", params)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		AggTradeID int64  `json:"a"`
		Price      string `json:"p"`
		Quantity   string `json:"q"`
		Timestamp  int64  `json:"T"`
		IsBuyerMM  bool   `json:"m"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, model.NewCollectorError(model.KindParse, a.Name(), "aggTrades", 0, err)
	}

	trades := make([]model.Trade, 0, len(rows))
	for _, r := range rows {
		price, err := strconv.ParseFloat(r.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(r.Quantity, 64)
		if err != nil {
			continue
		}
		side := model.SideBuy
		if r.IsBuyerMM {
			// the buyer is the market maker: the aggressive side was a sell
			side = model.SideSell
		}
		trades = append(trades, model.Trade{
			ExchangeTradeID: strconv.FormatInt(r.AggTradeID, 10),
			Timestamp:       time.UnixMilli(r.Timestamp).UTC(),
			Price:           price,
			Quantity:        qty,
			Side:            side,
		})
	}
	return trades, nil
}

// FetchOrderBookSnapshot fetches the current book via GET /depth.
func (a *Adapter) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error) {
	if depth <= 0 || depth > 5000 {
		depth = 100
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))

	body, err := a.get(ctx, "depth", params)
	if err != nil {
		return model.OrderBookSnapshot{}, err
	}

	var raw struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.OrderBookSnapshot{}, model.NewCollectorError(model.KindParse, a.Name(), "depth", 0, err)
	}

	return model.OrderBookSnapshot{
		Time:     time.Now().UTC(),
		UpdateID: raw.LastUpdateID,
		Bids:     parseStringLevels(raw.Bids),
		Asks:     parseStringLevels(raw.Asks),
	}, nil
}

func parseStringLevels(rows [][]string) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, model.PriceLevel{Price: price, Quantity: qty})
	}
	return levels
}

// SubscribeFrames builds the combined-stream subscription frame Binance's
// WebSocket protocol expects after connecting.
func (a *Adapter) SubscribeFrames(symbol string) ([]any, error) {
	lower := symbol
	return []any{
		map[string]any{
			"method": "SUBSCRIBE",
			"params": []string{lower + "@aggTrade", lower + "@depth@100ms"},
			"id":     1,
		},
	}, nil
}
