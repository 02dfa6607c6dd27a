package streamcollector

import (
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/orderbook"
)

// MessageType discriminates what a Decoder extracted from a raw WebSocket
// frame.
type MessageType int

const (
	// MessageOther is a frame the session should simply ignore (heartbeats,
	// subscription acks already handled internally, unrecognized events).
	MessageOther MessageType = iota
	MessageTrade
	// MessageKline carries a candle update; Closed is false for the
	// in-progress bar and must not be forwarded to storage (§4.2).
	MessageKline
	MessageBookDelta
	// MessageSubscribed signals one subscription request was acknowledged,
	// counted toward the Subscribing -> Live transition.
	MessageSubscribed
)

// Message is the normalized result of decoding one raw frame.
type Message struct {
	Type   MessageType
	Trade  model.Trade
	Kline  model.Candle
	Closed bool
	Delta  orderbook.Delta
}

// Decoder turns an exchange's raw WebSocket frames into normalized
// Messages. Each streaming exchange adapter provides one; the session
// itself is exchange-agnostic.
type Decoder interface {
	Decode(raw []byte) (Message, error)
}
