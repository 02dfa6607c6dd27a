// Package mock is a scriptable, in-memory Exchange used by the component
// test scenarios (gap resync, late-arriving trades, repeated REST failure,
// WebSocket drop/reconnect). It never makes network calls.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
)

// Adapter is a programmable fake venue. Tests populate Candles/Trades/Book
// and FailNext to script the behavior an individual call returns.
type Adapter struct {
	mu sync.Mutex

	name string

	Candles []model.Candle
	Trades  []model.Trade
	Book    model.OrderBookSnapshot

	// FailNext, if set, is returned (and cleared) by the next call to any
	// Fetch* method, letting a test force exactly one failure.
	FailNext error

	// Calls counts invocations per method, for assertions about retry
	// behavior.
	Calls map[string]int
}

// New creates a mock adapter with the given name ("mock" by default).
func New(name string) *Adapter {
	if name == "" {
		name = "mock"
	}
	return &Adapter{name: name, Calls: make(map[string]int)}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) WSEndpoint() string { return "mock://stream" }

func (a *Adapter) SubscribeFrames(symbol string) ([]any, error) {
	return []any{map[string]string{"subscribe": symbol}}, nil
}

func (a *Adapter) takeFailure(method string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls[method]++
	if a.FailNext != nil {
		err := a.FailNext
		a.FailNext = nil
		return err
	}
	return nil
}

func (a *Adapter) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	if err := a.takeFailure("FetchCandles"); err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(a.Candles))
	for _, c := range a.Candles {
		if c.Timeframe != tf {
			continue
		}
		if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *Adapter) FetchTrades(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	if err := a.takeFailure("FetchTrades"); err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(a.Trades))
	for _, t := range a.Trades {
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *Adapter) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (model.OrderBookSnapshot, error) {
	if err := a.takeFailure("FetchOrderBookSnapshot"); err != nil {
		return model.OrderBookSnapshot{}, err
	}
	return a.Book, nil
}

// CallCount returns how many times method has been invoked.
func (a *Adapter) CallCount(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Calls[method]
}
