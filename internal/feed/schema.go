package feed

import (
	"time"

	"github.com/google/uuid"
	"github.com/tmaillard/dtc-feed/internal/dtc"
)

// Topic names
const (
	TopicQuotes = "dtc.quotes"
	TopicTrades = "dtc.trades"
	TopicStatus = "dtc.status"
)

// QuoteMsg is the published view of a symbol's latest quote. Pointer fields
// are nil when the value was never received from the feed; zero is a real
// price and is published as such.
type QuoteMsg struct {
	EventID      string   `json:"event_id"`
	Symbol       string   `json:"symbol"`
	LastPrice    *float64 `json:"last_price,omitempty"`
	LastVolume   *float64 `json:"last_volume,omitempty"`
	BidPrice     *float64 `json:"bid_price,omitempty"`
	AskPrice     *float64 `json:"ask_price,omitempty"`
	SessionHigh  *float64 `json:"session_high,omitempty"`
	SessionLow   *float64 `json:"session_low,omitempty"`
	TsUnixMillis int64    `json:"ts_unix_millis"`
}

// TradeMsg is one published trade print.
type TradeMsg struct {
	EventID      string  `json:"event_id"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Volume       float64 `json:"volume"`
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// StatusMsg reports feed lifecycle changes (ready, reject, disconnect).
type StatusMsg struct {
	EventID      string `json:"event_id"`
	Status       string `json:"status"`
	Symbol       string `json:"symbol,omitempty"`
	Detail       string `json:"detail,omitempty"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}

// NewQuoteMsg converts a quote snapshot into its published form.
func NewQuoteMsg(symbol string, q dtc.Quote) QuoteMsg {
	return QuoteMsg{
		EventID:      uuid.NewString(),
		Symbol:       symbol,
		LastPrice:    nullToPtr(q.LastPrice),
		LastVolume:   nullToPtr(q.LastVolume),
		BidPrice:     nullToPtr(q.BidPrice),
		AskPrice:     nullToPtr(q.AskPrice),
		SessionHigh:  nullToPtr(q.SessionHigh),
		SessionLow:   nullToPtr(q.SessionLow),
		TsUnixMillis: time.Now().UnixMilli(),
	}
}

// NewTradeMsg converts a trade event into its published form.
func NewTradeMsg(symbol string, price, volume float64) TradeMsg {
	return TradeMsg{
		EventID:      uuid.NewString(),
		Symbol:       symbol,
		Price:        price,
		Volume:       volume,
		TsUnixMillis: time.Now().UnixMilli(),
	}
}

// NewStatusMsg builds a lifecycle status message.
func NewStatusMsg(status, symbol, detail string) StatusMsg {
	return StatusMsg{
		EventID:      uuid.NewString(),
		Status:       status,
		Symbol:       symbol,
		Detail:       detail,
		TsUnixMillis: time.Now().UnixMilli(),
	}
}

func nullToPtr(v dtc.NullFloat) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
