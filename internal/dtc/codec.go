package dtc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Binary message sizes, header included. Only the handshake and keep-alive
// messages have binary layouts; all market data is JSON-only.
const (
	binaryHeaderSize        = 4
	binaryEncodingSize      = 16
	binaryHeartbeatSize     = 16
	binaryLogonRequestSize  = 280
	binaryLogonResponseSize = 236
	binaryLogoffSize        = 101
)

// Encode serializes a message for the given encoding. JSON messages are
// UTF-8 text followed by a single NUL terminator; binary messages carry a
// 2-byte little-endian size then a 2-byte little-endian type code.
func Encode(m Message, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingJSON:
		return encodeJSON(m)
	case EncodingBinary:
		return encodeBinary(m)
	default:
		return nil, fmt.Errorf("unsupported encoding %d", enc)
	}
}

// Decode parses one complete wire message (JSON segment without its NUL
// terminator, or a binary frame including its header). Unknown message
// types decode to *RawMessage rather than failing.
func Decode(data []byte, enc Encoding) (Message, error) {
	switch enc {
	case EncodingJSON:
		return decodeJSON(data)
	case EncodingBinary:
		return decodeBinary(data)
	default:
		return nil, fmt.Errorf("unsupported encoding %d", enc)
	}
}

func encodeJSON(m Message) ([]byte, error) {
	stampType(m)
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.MsgType(), err)
	}
	return append(data, 0x00), nil
}

// stampType fills the wire Type field from the message's static type, so
// callers can build messages as plain struct literals.
func stampType(m Message) {
	switch v := m.(type) {
	case *EncodingRequest:
		v.Type = TypeEncodingRequest
	case *EncodingResponse:
		v.Type = TypeEncodingResponse
	case *LogonRequest:
		v.Type = TypeLogonRequest
	case *LogonResponse:
		v.Type = TypeLogonResponse
	case *Heartbeat:
		v.Type = TypeHeartbeat
	case *Logoff:
		v.Type = TypeLogoff
	case *MarketDataRequest:
		v.Type = TypeMarketDataRequest
	case *MarketDataReject:
		v.Type = TypeMarketDataReject
	case *MarketDataSnapshot:
		v.Type = TypeMarketDataSnapshot
	case *MarketDataUpdateTrade:
		v.Type = TypeMarketDataUpdateTrade
	case *MarketDataUpdateBidAsk:
		v.Type = TypeMarketDataUpdateBidAsk
	}
}

func decodeJSON(seg []byte) (Message, error) {
	var probe struct {
		Type MessageType `json:"Type"`
	}
	if err := json.Unmarshal(seg, &probe); err != nil {
		return nil, malformed(EncodingJSON, err)
	}

	var m Message
	switch probe.Type {
	case TypeEncodingRequest:
		m = &EncodingRequest{}
	case TypeEncodingResponse:
		m = &EncodingResponse{}
	case TypeLogonRequest:
		m = &LogonRequest{}
	case TypeLogonResponse:
		m = &LogonResponse{}
	case TypeHeartbeat:
		m = &Heartbeat{}
	case TypeLogoff:
		m = &Logoff{}
	case TypeMarketDataRequest:
		m = &MarketDataRequest{}
	case TypeMarketDataReject:
		m = &MarketDataReject{}
	case TypeMarketDataSnapshot:
		m = &MarketDataSnapshot{}
	case TypeMarketDataUpdateTrade:
		m = &MarketDataUpdateTrade{}
	case TypeMarketDataUpdateBidAsk:
		m = &MarketDataUpdateBidAsk{}
	default:
		raw := &RawMessage{TypeCode: probe.Type, Fields: map[string]any{}}
		if err := json.Unmarshal(seg, &raw.Fields); err != nil {
			return nil, malformed(EncodingJSON, err)
		}
		return raw, nil
	}

	if err := json.Unmarshal(seg, m); err != nil {
		return nil, malformed(EncodingJSON, err)
	}
	return m, nil
}

func encodeBinary(m Message) ([]byte, error) {
	stampType(m)
	var buf *bytes.Buffer

	switch v := m.(type) {
	case *EncodingRequest:
		buf = newBinaryFrame(binaryEncodingSize, TypeEncodingRequest)
		writeLE(buf, v.ProtocolVersion)
		writeLE(buf, int32(v.Encoding))
		writeFixedString(buf, v.ProtocolType, 4)
	case *EncodingResponse:
		buf = newBinaryFrame(binaryEncodingSize, TypeEncodingResponse)
		writeLE(buf, v.ProtocolVersion)
		writeLE(buf, int32(v.Encoding))
		writeFixedString(buf, v.ProtocolType, 4)
	case *Heartbeat:
		buf = newBinaryFrame(binaryHeartbeatSize, TypeHeartbeat)
		writeLE(buf, v.NumDroppedMessages)
		writeLE(buf, v.CurrentDateTime)
	case *LogonRequest:
		buf = newBinaryFrame(binaryLogonRequestSize, TypeLogonRequest)
		writeLE(buf, v.ProtocolVersion)
		writeFixedString(buf, v.Username, 32)
		writeFixedString(buf, v.Password, 32)
		writeFixedString(buf, v.GeneralTextData, 64)
		writeLE(buf, int32(0)) // Integer_1
		writeLE(buf, int32(0)) // Integer_2
		writeLE(buf, v.HeartbeatIntervalInSeconds)
		writeLE(buf, v.TradeMode)
		writeFixedString(buf, "", 32) // TradeAccount
		writeFixedString(buf, "", 64) // HardwareIdentifier
		writeFixedString(buf, v.ClientName, 32)
	case *LogonResponse:
		buf = newBinaryFrame(binaryLogonResponseSize, TypeLogonResponse)
		writeLE(buf, v.ProtocolVersion)
		writeLE(buf, v.Result)
		writeFixedString(buf, v.ResultText, 96)
		writeFixedString(buf, "", 64) // ReconnectAddress
		writeLE(buf, int32(0))        // Integer_1
		writeFixedString(buf, v.ServerName, 60)
	case *Logoff:
		buf = newBinaryFrame(binaryLogoffSize, TypeLogoff)
		writeFixedString(buf, v.Reason, 96)
		buf.WriteByte(0) // DoNotReconnect
	default:
		return nil, fmt.Errorf("message %s has no binary layout", m.MsgType())
	}

	return buf.Bytes(), nil
}

func decodeBinary(frame []byte) (Message, error) {
	if len(frame) < binaryHeaderSize {
		return nil, malformed(EncodingBinary, fmt.Errorf("frame too short: %d bytes", len(frame)))
	}
	size := binary.LittleEndian.Uint16(frame[0:2])
	code := MessageType(binary.LittleEndian.Uint16(frame[2:4]))
	if int(size) != len(frame) {
		return nil, malformed(EncodingBinary,
			fmt.Errorf("size field %d does not match frame length %d", size, len(frame)))
	}
	body := frame[binaryHeaderSize:]

	switch code {
	case TypeEncodingRequest, TypeEncodingResponse:
		if len(body) < binaryEncodingSize-binaryHeaderSize {
			return nil, malformed(EncodingBinary, fmt.Errorf("%s truncated", code))
		}
		pv := int32(binary.LittleEndian.Uint32(body[0:4]))
		enc := Encoding(binary.LittleEndian.Uint32(body[4:8]))
		pt := readFixedString(body[8:12])
		if code == TypeEncodingRequest {
			return &EncodingRequest{Type: code, ProtocolVersion: pv, Encoding: enc, ProtocolType: pt}, nil
		}
		return &EncodingResponse{Type: code, ProtocolVersion: pv, Encoding: enc, ProtocolType: pt}, nil
	case TypeHeartbeat:
		if len(body) < binaryHeartbeatSize-binaryHeaderSize {
			return nil, malformed(EncodingBinary, fmt.Errorf("heartbeat truncated"))
		}
		return &Heartbeat{
			Type:               code,
			NumDroppedMessages: binary.LittleEndian.Uint32(body[0:4]),
			CurrentDateTime:    int64(binary.LittleEndian.Uint64(body[4:12])),
		}, nil
	case TypeLogonRequest:
		if len(body) < binaryLogonRequestSize-binaryHeaderSize {
			return nil, malformed(EncodingBinary, fmt.Errorf("logon request truncated"))
		}
		return &LogonRequest{
			Type:                       code,
			ProtocolVersion:            int32(binary.LittleEndian.Uint32(body[0:4])),
			Username:                   readFixedString(body[4:36]),
			Password:                   readFixedString(body[36:68]),
			GeneralTextData:            readFixedString(body[68:132]),
			HeartbeatIntervalInSeconds: int32(binary.LittleEndian.Uint32(body[140:144])),
			TradeMode:                  int32(binary.LittleEndian.Uint32(body[144:148])),
			ClientName:                 readFixedString(body[244:276]),
		}, nil
	case TypeLogonResponse:
		// Servers append capability flags past ServerName; ignore the tail.
		if len(body) < binaryLogonResponseSize-binaryHeaderSize {
			return nil, malformed(EncodingBinary, fmt.Errorf("logon response truncated"))
		}
		return &LogonResponse{
			Type:            code,
			ProtocolVersion: int32(binary.LittleEndian.Uint32(body[0:4])),
			Result:          int32(binary.LittleEndian.Uint32(body[4:8])),
			ResultText:      readFixedString(body[8:104]),
			ServerName:      readFixedString(body[172:232]),
		}, nil
	case TypeLogoff:
		if len(body) < binaryLogoffSize-binaryHeaderSize {
			return nil, malformed(EncodingBinary, fmt.Errorf("logoff truncated"))
		}
		return &Logoff{Type: code, Reason: readFixedString(body[0:96])}, nil
	default:
		return &RawMessage{TypeCode: code, Fields: map[string]any{"Size": int(size)}}, nil
	}
}

func newBinaryFrame(size int, code MessageType) *bytes.Buffer {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	var header [4]byte
	binary.LittleEndian.PutUint16(header[0:2], uint16(size))
	binary.LittleEndian.PutUint16(header[2:4], uint16(code))
	buf.Write(header[:])
	return buf
}

func writeLE(buf *bytes.Buffer, v any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.LittleEndian, v)
}

// writeFixedString writes s into a fixed-width NUL-padded field, truncating
// if needed but always leaving a terminating NUL.
func writeFixedString(buf *bytes.Buffer, s string, width int) {
	field := make([]byte, width)
	copy(field[:width-1], s)
	buf.Write(field)
}

func readFixedString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
