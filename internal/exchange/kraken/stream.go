package kraken

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/orderbook"
	"github.com/sawpanic/ingestd/internal/streamcollector"
)

// StreamDecoder decodes Kraken's WebSocket v1 protocol into
// streamcollector.Message values. It is stateful: Kraken's channel messages
// are keyed by a numeric channelID assigned at subscription time, so the
// decoder must remember the channelID -> (pair, channel name) mapping from
// each subscriptionStatus event, mirroring the teacher's subscriptions map.
type StreamDecoder struct {
	mu        sync.RWMutex
	channels  map[int]channelInfo
	marketIDs map[string]int64 // uppercase pair -> internal market id

	// lastUpdateIDs assigns a contiguous synthetic sequence range per pair,
	// since Kraken's v1 book channel has no native first/last update id
	// (it validates integrity via a checksum instead). Every book message
	// this decoder processes is therefore contiguous by construction; a
	// true gap would show up as a checksum mismatch, which is not modeled
	// here.
	lastUpdateIDs map[string]int64
}

type channelInfo struct {
	name string
	pair string
}

// NewStreamDecoder constructs a decoder that resolves Kraken pairs to
// internal market ids via marketIDs (as populated from MarketRepo.List at
// startup).
func NewStreamDecoder(marketIDs map[string]int64) *StreamDecoder {
	return &StreamDecoder{
		channels:      make(map[int]channelInfo),
		marketIDs:     marketIDs,
		lastUpdateIDs: make(map[string]int64),
	}
}

// subscriptionStatusMsg mirrors the event envelope Kraken sends to confirm
// (or reject) a subscribe request.
type subscriptionStatusMsg struct {
	ChannelID int    `json:"channelID"`
	Event     string `json:"event"`
	Status    string `json:"status"`
	Pair      string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// Decode implements streamcollector.Decoder.
func (d *StreamDecoder) Decode(raw []byte) (streamcollector.Message, error) {
	var event struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &event); err == nil && event.Event != "" {
		if event.Event == "subscriptionStatus" {
			return d.decodeSubscriptionStatus(raw)
		}
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 3 {
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}

	var channelID int
	if err := json.Unmarshal(arr[0], &channelID); err != nil {
		return streamcollector.Message{}, fmt.Errorf("kraken stream: bad channel id: %w", err)
	}

	d.mu.RLock()
	info, ok := d.channels[channelID]
	d.mu.RUnlock()
	if !ok {
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}

	switch info.name {
	case "trade":
		return d.decodeTrade(arr[1], info.pair)
	case "book":
		return d.decodeBookDelta(arr[1], info.pair)
	default:
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}
}

func (d *StreamDecoder) decodeSubscriptionStatus(raw []byte) (streamcollector.Message, error) {
	var status subscriptionStatusMsg
	if err := json.Unmarshal(raw, &status); err != nil {
		return streamcollector.Message{}, fmt.Errorf("kraken stream: bad subscriptionStatus: %w", err)
	}
	if status.Status != "subscribed" {
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}

	d.mu.Lock()
	d.channels[status.ChannelID] = channelInfo{name: status.Subscription.Name, pair: status.Pair}
	d.mu.Unlock()

	return streamcollector.Message{Type: streamcollector.MessageSubscribed}, nil
}

func (d *StreamDecoder) marketID(pair string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.marketIDs[pair]
}

func (d *StreamDecoder) decodeTrade(payload json.RawMessage, pair string) (streamcollector.Message, error) {
	var rows [][]any
	if err := json.Unmarshal(payload, &rows); err != nil {
		return streamcollector.Message{}, fmt.Errorf("kraken stream: bad trade payload: %w", err)
	}
	if len(rows) == 0 {
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}

	// Only the first execution in the batch is forwarded; the session
	// calls Decode once per frame, so callers that need every execution in
	// a multi-trade frame should drain payload themselves. Kraken rarely
	// batches more than one trade per frame in practice.
	row := rows[0]
	if len(row) < 4 {
		return streamcollector.Message{Type: streamcollector.MessageOther}, nil
	}
	price, err := parseFloatField(row[0])
	if err != nil {
		return streamcollector.Message{}, err
	}
	qty, err := parseFloatField(row[1])
	if err != nil {
		return streamcollector.Message{}, err
	}
	ts, _ := row[2].(float64)
	side := model.SideBuy
	if dir, ok := row[3].(string); ok && dir == "s" {
		side = model.SideSell
	}

	return streamcollector.Message{
		Type: streamcollector.MessageTrade,
		Trade: model.Trade{
			MarketID:  d.marketID(pair),
			Timestamp: time.Unix(int64(ts), int64((ts-float64(int64(ts)))*1e9)).UTC(),
			Price:     price,
			Quantity:  qty,
			Side:      side,
		},
	}, nil
}

func (d *StreamDecoder) decodeBookDelta(payload json.RawMessage, pair string) (streamcollector.Message, error) {
	var raw struct {
		As []any `json:"as"` // full snapshot ask side, absent on incremental updates
		Bs []any `json:"bs"`
		A  []any `json:"a"` // incremental ask updates
		B  []any `json:"b"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return streamcollector.Message{}, fmt.Errorf("kraken stream: bad book payload: %w", err)
	}

	asks := raw.A
	if asks == nil {
		asks = raw.As
	}
	bids := raw.B
	if bids == nil {
		bids = raw.Bs
	}

	delta := orderbook.Delta{MarketID: d.marketID(pair), Symbol: pair}
	delta.Asks = parseLevels(asks)
	delta.Bids = parseLevels(bids)
	delta.FirstUpdateID, delta.LastUpdateID = d.nextUpdateRange(pair, len(delta.Asks)+len(delta.Bids))

	return streamcollector.Message{Type: streamcollector.MessageBookDelta, Delta: delta}, nil
}

// nextUpdateRange hands out the next contiguous [first, last] id range for
// pair, advancing by count (at least 1, so an empty-but-present delta still
// consumes a slot rather than colliding with the next one).
func (d *StreamDecoder) nextUpdateRange(pair string, count int) (first, last int64) {
	if count < 1 {
		count = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	first = d.lastUpdateIDs[pair] + 1
	last = first + int64(count) - 1
	d.lastUpdateIDs[pair] = last
	return first, last
}

// parseLevels parses Kraken's [price, volume, timestamp] level rows.
func parseLevels(rows []any) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) < 3 {
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
	}
	return levels
}
