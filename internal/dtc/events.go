package dtc

// Event is a typed notification delivered on the connection's event channel.
// Consumers receive these without seeing any wire-level detail.
type Event interface {
	eventKind() string
}

// AcceptReason records which protocol path promoted the session to Ready.
type AcceptReason int

const (
	// AcceptLogonResponse: the server sent an explicit successful LogonResponse.
	AcceptLogonResponse AcceptReason = iota
	// AcceptHeartbeat: the server never sent a LogonResponse but kept
	// heartbeating after our LogonRequest, which some servers use as an
	// implicit accept.
	AcceptHeartbeat
)

func (r AcceptReason) String() string {
	if r == AcceptHeartbeat {
		return "heartbeat"
	}
	return "logon_response"
}

// ConnectedEvent fires when the TCP connection is established, before the
// protocol handshake completes.
type ConnectedEvent struct {
	RemoteAddr string
}

// ReadyEvent fires when the session is authenticated and streaming-capable.
type ReadyEvent struct {
	Reason     AcceptReason
	ServerName string
}

// AuthFailedEvent fires when the server explicitly rejects the logon.
type AuthFailedEvent struct {
	Reason string
}

// SnapshotEvent delivers a full market snapshot for a subscribed symbol.
type SnapshotEvent struct {
	Symbol string
	Quote  Quote
}

// TradeEvent delivers one trade print.
type TradeEvent struct {
	Symbol string
	Price  float64
	Volume float64
}

// BidAskEvent delivers a best bid/ask change.
type BidAskEvent struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// RejectEvent reports a per-symbol subscription rejection; the connection
// and other subscriptions are unaffected.
type RejectEvent struct {
	Symbol string
	Reason string
}

// DisconnectedEvent is the terminal event. Err is nil after an explicit
// Close, non-nil when the connection failed.
type DisconnectedEvent struct {
	Err error
}

func (ConnectedEvent) eventKind() string    { return "connected" }
func (ReadyEvent) eventKind() string        { return "ready" }
func (AuthFailedEvent) eventKind() string   { return "auth_failed" }
func (SnapshotEvent) eventKind() string     { return "snapshot" }
func (TradeEvent) eventKind() string        { return "trade" }
func (BidAskEvent) eventKind() string       { return "bidask" }
func (RejectEvent) eventKind() string       { return "reject" }
func (DisconnectedEvent) eventKind() string { return "disconnected" }
