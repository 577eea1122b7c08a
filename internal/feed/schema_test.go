package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaillard/dtc-feed/internal/dtc"
)

func TestNewQuoteMsg_UnknownFieldsOmitted(t *testing.T) {
	q := dtc.Quote{
		LastPrice:  dtc.NullFloat{Float64: 50000.0, Valid: true},
		LastVolume: dtc.NullFloat{Float64: 0.5, Valid: true},
		// bid/ask/high/low never received
	}

	msg := NewQuoteMsg("BTCUSDT_PERP_BINANCE", q)
	require.NotEmpty(t, msg.EventID)
	require.NotNil(t, msg.LastPrice)
	assert.Equal(t, 50000.0, *msg.LastPrice)
	assert.Nil(t, msg.BidPrice)
	assert.Nil(t, msg.SessionHigh)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "bid_price", "unknown fields are omitted, not published as zero")
	assert.Contains(t, string(data), "last_price")
}

func TestNewQuoteMsg_ZeroPricePublished(t *testing.T) {
	q := dtc.Quote{LastPrice: dtc.NullFloat{Float64: 0, Valid: true}}
	msg := NewQuoteMsg("WTI", q)

	require.NotNil(t, msg.LastPrice)
	assert.Equal(t, 0.0, *msg.LastPrice)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_price":0`, "a received zero is a real price and must be published")
}

func TestNewTradeMsg(t *testing.T) {
	msg := NewTradeMsg("ESZ5", 5000.25, 2)
	assert.Equal(t, "ESZ5", msg.Symbol)
	assert.Equal(t, 5000.25, msg.Price)
	assert.NotEmpty(t, msg.EventID)
	assert.NotZero(t, msg.TsUnixMillis)
}

func TestNewStatusMsg(t *testing.T) {
	msg := NewStatusMsg("reject", "BAD", "market data not allowed")
	assert.Equal(t, "reject", msg.Status)
	assert.Equal(t, "BAD", msg.Symbol)
	assert.Equal(t, "market data not allowed", msg.Detail)
}
