package dtc

import (
	"sync"
	"time"
)

// NullFloat is a float64 that distinguishes "never received" from a real
// zero value. Zero is a valid price in degenerate cases, so Quote fields
// must not default to it.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

func knownFloat(v float64) NullFloat { return NullFloat{Float64: v, Valid: true} }

// Quote is the latest known market state for one subscribed symbol. Fields
// start unknown and are only touched by the message kinds that carry them:
// a trade update never clobbers bid/ask, a bid/ask update never clobbers
// the last trade.
type Quote struct {
	LastPrice   NullFloat
	LastVolume  NullFloat
	BidPrice    NullFloat
	AskPrice    NullFloat
	SessionHigh NullFloat
	SessionLow  NullFloat
	UpdatedAt   time.Time
}

// SubscriptionState is the lifecycle state of one symbol subscription.
type SubscriptionState int32

const (
	SubPending SubscriptionState = iota
	SubActive
	SubRejected
	SubClosed
)

func (s SubscriptionState) String() string {
	switch s {
	case SubPending:
		return "pending"
	case SubActive:
		return "active"
	case SubRejected:
		return "rejected"
	case SubClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscription is a handle to one symbol's market data interest. All state
// behind it is guarded by the owning table's lock; accessors return
// snapshots safe to use from any goroutine.
type Subscription struct {
	table    *subscriptionTable
	id       uint32
	symbol   string
	exchange string

	state        SubscriptionState
	rejectReason string
	quote        Quote
}

// ID returns the protocol-level numeric symbol ID.
func (s *Subscription) ID() uint32 { return s.id }

// Symbol returns the application symbol string.
func (s *Subscription) Symbol() string { return s.symbol }

// Exchange returns the exchange qualifier, possibly empty.
func (s *Subscription) Exchange() string { return s.exchange }

// State returns the current subscription state.
func (s *Subscription) State() SubscriptionState {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	return s.state
}

// RejectReason returns the server's reject text, if the subscription was
// rejected.
func (s *Subscription) RejectReason() string {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	return s.rejectReason
}

// Quote returns a copy of the latest known quote.
func (s *Subscription) Quote() Quote {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	return s.quote
}

// subscriptionTable owns SymbolID allocation and the SymbolID ↔ subscription
// mapping for one connection. IDs start at 1 and are never reused, so a
// stale message for an unsubscribed ID is unambiguous and droppable.
type subscriptionTable struct {
	mu       sync.Mutex
	nextID   uint32
	byID     map[uint32]*Subscription
	bySymbol map[string]*Subscription
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		nextID:   1,
		byID:     make(map[uint32]*Subscription),
		bySymbol: make(map[string]*Subscription),
	}
}

// create allocates the next SymbolID and registers a pending subscription.
// A symbol may have at most one live (pending or active) subscription.
func (t *subscriptionTable) create(symbol, exchange string) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.bySymbol[symbol]; ok {
		if existing.state == SubPending || existing.state == SubActive {
			return nil, ErrDuplicateSubscription
		}
	}

	sub := &Subscription{
		table:    t,
		id:       t.nextID,
		symbol:   symbol,
		exchange: exchange,
		state:    SubPending,
	}
	t.nextID++
	t.byID[sub.id] = sub
	t.bySymbol[symbol] = sub
	return sub, nil
}

// close marks a subscription closed. The ID stays registered so late
// messages resolve to a closed subscription and are dropped silently.
func (t *subscriptionTable) close(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub.state = SubClosed
	if t.bySymbol[sub.symbol] == sub {
		delete(t.bySymbol, sub.symbol)
	}
}

// live reports whether the subscription accepts data, activating it on its
// first data message. Callers must hold t.mu.
func (t *subscriptionTable) live(sub *Subscription) bool {
	switch sub.state {
	case SubClosed, SubRejected:
		return false
	case SubPending:
		sub.state = SubActive
	}
	return true
}

// applySnapshot replaces the full quote. Returns the resolved symbol and a
// copy of the updated quote; ok=false means the message must be dropped.
func (t *subscriptionTable) applySnapshot(m *MarketDataSnapshot, now time.Time) (string, Quote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.byID[m.SymbolID]
	if !ok || !t.live(sub) {
		return "", Quote{}, false
	}
	sub.quote = Quote{
		LastPrice:   knownFloat(m.LastTradePrice),
		LastVolume:  knownFloat(m.LastTradeVolume),
		BidPrice:    knownFloat(m.BidPrice),
		AskPrice:    knownFloat(m.AskPrice),
		SessionHigh: knownFloat(m.SessionHighPrice),
		SessionLow:  knownFloat(m.SessionLowPrice),
		UpdatedAt:   now,
	}
	return sub.symbol, sub.quote, true
}

// applyTrade updates only the last trade fields.
func (t *subscriptionTable) applyTrade(m *MarketDataUpdateTrade, now time.Time) (string, Quote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.byID[m.SymbolID]
	if !ok || !t.live(sub) {
		return "", Quote{}, false
	}
	sub.quote.LastPrice = knownFloat(m.Price)
	sub.quote.LastVolume = knownFloat(m.Volume)
	sub.quote.UpdatedAt = now
	return sub.symbol, sub.quote, true
}

// applyBidAsk updates only the best bid and ask.
func (t *subscriptionTable) applyBidAsk(m *MarketDataUpdateBidAsk, now time.Time) (string, Quote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.byID[m.SymbolID]
	if !ok || !t.live(sub) {
		return "", Quote{}, false
	}
	sub.quote.BidPrice = knownFloat(m.BidPrice)
	sub.quote.AskPrice = knownFloat(m.AskPrice)
	sub.quote.UpdatedAt = now
	return sub.symbol, sub.quote, true
}

// applyReject marks one subscription rejected. Other subscriptions and the
// connection itself are unaffected.
func (t *subscriptionTable) applyReject(m *MarketDataReject) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.byID[m.SymbolID]
	if !ok || sub.state == SubClosed {
		return "", false
	}
	sub.state = SubRejected
	sub.rejectReason = m.RejectText
	if t.bySymbol[sub.symbol] == sub {
		delete(t.bySymbol, sub.symbol)
	}
	return sub.symbol, true
}

// closeAll marks every live subscription closed; used at teardown.
func (t *subscriptionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.byID {
		if sub.state == SubPending || sub.state == SubActive {
			sub.state = SubClosed
		}
	}
	t.bySymbol = make(map[string]*Subscription)
}
