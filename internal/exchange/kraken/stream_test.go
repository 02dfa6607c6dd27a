package kraken

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/streamcollector"
)

func TestDecodeSubscriptionStatusRegistersChannel(t *testing.T) {
	d := NewStreamDecoder(map[string]int64{"XBT/USD": 7})

	msg, err := d.Decode([]byte(`{"channelID":336,"channelName":"trade","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"name":"trade"}}`))
	require.NoError(t, err)
	require.Equal(t, streamcollector.MessageSubscribed, msg.Type)

	info, ok := d.channels[336]
	require.True(t, ok)
	require.Equal(t, "trade", info.name)
	require.Equal(t, "XBT/USD", info.pair)
}

func TestDecodeTradeMessage(t *testing.T) {
	d := NewStreamDecoder(map[string]int64{"XBT/USD": 7})
	d.channels[336] = channelInfo{name: "trade", pair: "XBT/USD"}

	raw := []byte(`[336,[["5541.20000","0.15850568","1534614057.321597","s","l",""]],"trade","XBT/USD"]`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, streamcollector.MessageTrade, msg.Type)
	require.Equal(t, int64(7), msg.Trade.MarketID)
	require.Equal(t, 5541.20000, msg.Trade.Price)
}

func TestDecodeBookDeltaMessage(t *testing.T) {
	d := NewStreamDecoder(map[string]int64{"XBT/USD": 7})
	d.channels[336] = channelInfo{name: "book", pair: "XBT/USD"}

	raw := []byte(`[336,{"a":[["5541.30000","2.50700000","1534614057.035800"]],"b":[["5541.20000","1.52900000","1534614057.038400"]]},"book-10","XBT/USD"]`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, streamcollector.MessageBookDelta, msg.Type)
	require.Equal(t, int64(7), msg.Delta.MarketID)
	require.Equal(t, "XBT/USD", msg.Delta.Symbol)
	require.Len(t, msg.Delta.Asks, 1)
	require.Len(t, msg.Delta.Bids, 1)
	require.Equal(t, int64(1), msg.Delta.FirstUpdateID)
	require.Equal(t, int64(2), msg.Delta.LastUpdateID)
}

func TestDecodeBookDeltaAssignsContiguousRangesPerPair(t *testing.T) {
	d := NewStreamDecoder(map[string]int64{"XBT/USD": 7})
	d.channels[336] = channelInfo{name: "book", pair: "XBT/USD"}

	raw := []byte(`[336,{"a":[["5541.30000","2.50700000","1534614057.035800"]]},"book-10","XBT/USD"]`)
	first, err := d.Decode(raw)
	require.NoError(t, err)
	second, err := d.Decode(raw)
	require.NoError(t, err)

	require.Equal(t, first.Delta.LastUpdateID+1, second.Delta.FirstUpdateID)
}

func TestDecodeUnknownChannelIsIgnored(t *testing.T) {
	d := NewStreamDecoder(nil)
	raw := []byte(`[999,["ignored"],"trade","XBT/USD"]`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, streamcollector.MessageOther, msg.Type)
}
