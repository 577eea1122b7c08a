package dtc

import (
	"encoding/json"
	"fmt"
)

// MessageType is a DTC message type code. On the wire it appears either as
// the canonical integer code or, in JSON mode, as the equivalent string name;
// both forms unmarshal transparently.
type MessageType uint16

const (
	TypeLogonRequest           MessageType = 1
	TypeLogonResponse          MessageType = 2
	TypeHeartbeat              MessageType = 3
	TypeLogoff                 MessageType = 5
	TypeEncodingRequest        MessageType = 6
	TypeEncodingResponse       MessageType = 7
	TypeMarketDataRequest      MessageType = 101
	TypeMarketDataReject       MessageType = 103
	TypeMarketDataSnapshot     MessageType = 104
	TypeMarketDataUpdateTrade  MessageType = 107
	TypeMarketDataUpdateBidAsk MessageType = 108
)

var typeNames = map[MessageType]string{
	TypeLogonRequest:           "LogonRequest",
	TypeLogonResponse:          "LogonResponse",
	TypeHeartbeat:              "Heartbeat",
	TypeLogoff:                 "Logoff",
	TypeEncodingRequest:        "EncodingRequest",
	TypeEncodingResponse:       "EncodingResponse",
	TypeMarketDataRequest:      "MarketDataRequest",
	TypeMarketDataReject:       "MarketDataReject",
	TypeMarketDataSnapshot:     "MarketDataSnapshot",
	TypeMarketDataUpdateTrade:  "MarketDataUpdateTrade",
	TypeMarketDataUpdateBidAsk: "MarketDataUpdateBidAsk",
}

var typeCodes = func() map[string]MessageType {
	m := make(map[string]MessageType, len(typeNames))
	for code, name := range typeNames {
		m[name] = code
	}
	return m
}()

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// MarshalJSON always emits the integer code.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint16(t))
}

// UnmarshalJSON accepts either the integer code or the string name.
func (t *MessageType) UnmarshalJSON(b []byte) error {
	var code uint16
	if err := json.Unmarshal(b, &code); err == nil {
		*t = MessageType(code)
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("message type is neither integer nor string: %s", b)
	}
	code2, ok := typeCodes[name]
	if !ok {
		return fmt.Errorf("unknown message type name %q", name)
	}
	*t = code2
	return nil
}

// Encoding identifies the active wire encoding. Values follow the DTC codes.
type Encoding int32

const (
	EncodingBinary Encoding = 0
	EncodingJSON   Encoding = 2
)

func (e Encoding) String() string {
	switch e {
	case EncodingBinary:
		return "binary"
	case EncodingJSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int32(e))
	}
}

// ProtocolVersion is the DTC protocol version this client speaks.
const ProtocolVersion = 8

// Message is a decoded DTC protocol message.
type Message interface {
	MsgType() MessageType
}

// EncodingRequest proposes a wire encoding to the server.
type EncodingRequest struct {
	Type            MessageType `json:"Type"`
	ProtocolVersion int32       `json:"ProtocolVersion"`
	Encoding        Encoding    `json:"Encoding"`
	ProtocolType    string      `json:"ProtocolType"`
}

func (m *EncodingRequest) MsgType() MessageType { return TypeEncodingRequest }

// EncodingResponse is the server's encoding choice.
type EncodingResponse struct {
	Type            MessageType `json:"Type"`
	ProtocolVersion int32       `json:"ProtocolVersion"`
	Encoding        Encoding    `json:"Encoding"`
	ProtocolType    string      `json:"ProtocolType,omitempty"`
}

func (m *EncodingResponse) MsgType() MessageType { return TypeEncodingResponse }

// LogonRequest authenticates the session. Empty username and password
// attempt an anonymous logon, which some servers permit.
type LogonRequest struct {
	Type                       MessageType `json:"Type"`
	ProtocolVersion            int32       `json:"ProtocolVersion"`
	Username                   string      `json:"Username"`
	Password                   string      `json:"Password"`
	GeneralTextData            string      `json:"GeneralTextData"`
	HeartbeatIntervalInSeconds int32       `json:"HeartbeatIntervalInSeconds"`
	TradeMode                  int32       `json:"TradeMode"`
	ClientName                 string      `json:"ClientName"`
}

func (m *LogonRequest) MsgType() MessageType { return TypeLogonRequest }

// Logon result codes observed from servers.
const (
	LogonSuccess = 1
)

// LogonResponse reports the logon outcome. Result=1 is success; Result=0 is
// also treated as success by default (server behavior varies), see Config.
type LogonResponse struct {
	Type            MessageType `json:"Type"`
	ProtocolVersion int32       `json:"ProtocolVersion,omitempty"`
	Result          int32       `json:"Result"`
	ResultText      string      `json:"ResultText,omitempty"`
	ServerName      string      `json:"ServerName,omitempty"`
}

func (m *LogonResponse) MsgType() MessageType { return TypeLogonResponse }

// Heartbeat is the bidirectional keep-alive message.
type Heartbeat struct {
	Type               MessageType `json:"Type"`
	NumDroppedMessages uint32      `json:"NumDroppedMessages"`
	CurrentDateTime    int64       `json:"CurrentDateTime"`
}

func (m *Heartbeat) MsgType() MessageType { return TypeHeartbeat }

// Logoff announces session termination; sent best-effort before close.
type Logoff struct {
	Type   MessageType `json:"Type"`
	Reason string      `json:"Reason,omitempty"`
}

func (m *Logoff) MsgType() MessageType { return TypeLogoff }

// Market data request actions.
const (
	RequestActionSubscribe   = 1
	RequestActionUnsubscribe = 2
)

// MarketDataRequest subscribes to or unsubscribes from a symbol's stream.
type MarketDataRequest struct {
	Type          MessageType `json:"Type"`
	RequestAction int32       `json:"RequestAction"`
	SymbolID      uint32      `json:"SymbolID"`
	Symbol        string      `json:"Symbol"`
	Exchange      string      `json:"Exchange"`
}

func (m *MarketDataRequest) MsgType() MessageType { return TypeMarketDataRequest }

// MarketDataReject refuses one subscription; never fatal to the session.
type MarketDataReject struct {
	Type       MessageType `json:"Type"`
	SymbolID   uint32      `json:"SymbolID"`
	RejectText string      `json:"RejectText,omitempty"`
}

func (m *MarketDataReject) MsgType() MessageType { return TypeMarketDataReject }

// MarketDataSnapshot carries the full current market state for a symbol.
type MarketDataSnapshot struct {
	Type             MessageType `json:"Type"`
	SymbolID         uint32      `json:"SymbolID"`
	LastTradePrice   float64     `json:"LastTradePrice"`
	LastTradeVolume  float64     `json:"LastTradeVolume"`
	BidPrice         float64     `json:"BidPrice"`
	AskPrice         float64     `json:"AskPrice"`
	SessionHighPrice float64     `json:"SessionHighPrice"`
	SessionLowPrice  float64     `json:"SessionLowPrice"`
}

func (m *MarketDataSnapshot) MsgType() MessageType { return TypeMarketDataSnapshot }

// MarketDataUpdateTrade reports one trade print.
type MarketDataUpdateTrade struct {
	Type     MessageType `json:"Type"`
	SymbolID uint32      `json:"SymbolID"`
	Price    float64     `json:"Price"`
	Volume   float64     `json:"Volume"`
}

func (m *MarketDataUpdateTrade) MsgType() MessageType { return TypeMarketDataUpdateTrade }

// MarketDataUpdateBidAsk reports a best bid/ask change.
type MarketDataUpdateBidAsk struct {
	Type     MessageType `json:"Type"`
	SymbolID uint32      `json:"SymbolID"`
	BidPrice float64     `json:"BidPrice"`
	AskPrice float64     `json:"AskPrice"`
}

func (m *MarketDataUpdateBidAsk) MsgType() MessageType { return TypeMarketDataUpdateBidAsk }

// RawMessage holds any message type this client does not model. The session
// logs and ignores these rather than failing the connection.
type RawMessage struct {
	TypeCode MessageType
	Fields   map[string]any
}

func (m *RawMessage) MsgType() MessageType { return m.TypeCode }
