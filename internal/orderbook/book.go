// Package orderbook reconstructs a live, depth-limited order book per market
// from a REST snapshot plus a sequence of WebSocket deltas, detecting
// sequence gaps and exposing the Top-N projection the batch writer persists.
package orderbook

import (
	"sort"
	"sync"

	"github.com/sawpanic/ingestd/internal/model"
)

// Delta is one incremental order-book update. Side entries with Quantity 0
// mean "remove this price level." FirstUpdateID/LastUpdateID bound the range
// of sequence ids this delta covers (§4.3); a delta whose FirstUpdateID does
// not continue directly from the book's last applied id signals a gap.
type Delta struct {
	MarketID      int64
	Symbol        string // native exchange symbol, for REST resync on a gap
	FirstUpdateID int64
	LastUpdateID  int64
	Bids          []model.PriceLevel
	Asks          []model.PriceLevel
}

// book holds one market's reconstructed order book as price->quantity maps;
// Snapshot sorts them into the canonical descending-bid/ascending-ask form.
type book struct {
	updateID int64
	bids     map[float64]float64
	asks     map[float64]float64
}

func newBook() *book {
	return &book{bids: make(map[float64]float64), asks: make(map[float64]float64)}
}

func applySide(side map[float64]float64, levels []model.PriceLevel) {
	for _, l := range levels {
		if l.Quantity <= 0 {
			delete(side, l.Price)
			continue
		}
		side[l.Price] = l.Quantity
	}
}

// Reconstructor holds one book per market and applies deltas against it.
type Reconstructor struct {
	mu    sync.Mutex
	books map[int64]*book
	depth int
}

// New creates a Reconstructor that keeps the top `depth` levels per side.
func New(depth int) *Reconstructor {
	if depth <= 0 {
		depth = 50
	}
	return &Reconstructor{books: make(map[int64]*book), depth: depth}
}

// LoadSnapshot resets a market's book to a freshly fetched REST snapshot,
// the recovery path for a detected sequence gap (§4.3, §7).
func (r *Reconstructor) LoadSnapshot(snap model.OrderBookSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := newBook()
	b.updateID = snap.UpdateID
	applySide(b.bids, snap.Bids)
	applySide(b.asks, snap.Asks)
	r.books[snap.MarketID] = b
}

// ApplyDelta applies an incremental update. It returns model.ErrSequenceGap
// if delta.FirstUpdateID does not continue the book's sequence — i.e. if
// delta.FirstUpdateID > book's last applied id + 1, meaning one or more
// intermediate updates were missed (§4.3, §7 S3). The caller must then
// resync via LoadSnapshot before applying further deltas.
func (r *Reconstructor) ApplyDelta(delta Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[delta.MarketID]
	if !ok {
		return model.ErrSequenceGap
	}
	if delta.LastUpdateID <= b.updateID {
		return nil // stale/duplicate delta, already applied
	}
	if delta.FirstUpdateID > b.updateID+1 {
		return model.ErrSequenceGap
	}

	applySide(b.bids, delta.Bids)
	applySide(b.asks, delta.Asks)
	b.updateID = delta.LastUpdateID
	return nil
}

// Snapshot returns the current Top-N projection for a market, or false if no
// book has been loaded yet. The caller stamps Time on the result.
func (r *Reconstructor) Snapshot(marketID int64) (model.OrderBookSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[marketID]
	if !ok {
		return model.OrderBookSnapshot{}, false
	}

	snap := model.OrderBookSnapshot{
		MarketID: marketID,
		UpdateID: b.updateID,
		Bids:     topN(b.bids, r.depth, true),
		Asks:     topN(b.asks, r.depth, false),
	}
	return snap, true
}

func topN(side map[float64]float64, n int, descending bool) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, len(side))
	for price, qty := range side {
		levels = append(levels, model.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	if len(levels) > n {
		levels = levels[:n]
	}
	return levels
}
