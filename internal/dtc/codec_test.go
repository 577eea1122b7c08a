package dtc

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSON_NulTerminated(t *testing.T) {
	data, err := Encode(&Heartbeat{NumDroppedMessages: 0, CurrentDateTime: 1700000000}, EncodingJSON)
	require.NoError(t, err)

	require.NotEmpty(t, data)
	assert.Equal(t, byte(0x00), data[len(data)-1], "JSON messages end with a NUL terminator")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &fields))
	assert.Equal(t, float64(TypeHeartbeat), fields["Type"], "Type is emitted as the integer code")
	assert.Equal(t, float64(1700000000), fields["CurrentDateTime"])
}

func TestDecodeJSON_IntegerTypeCode(t *testing.T) {
	seg := []byte(`{"Type":2,"Result":1,"ResultText":"ok","ServerName":"SC"}`)
	m, err := Decode(seg, EncodingJSON)
	require.NoError(t, err)

	resp, ok := m.(*LogonResponse)
	require.True(t, ok, "expected *LogonResponse, got %T", m)
	assert.Equal(t, int32(1), resp.Result)
	assert.Equal(t, "SC", resp.ServerName)
}

func TestDecodeJSON_StringTypeName(t *testing.T) {
	seg := []byte(`{"Type":"LogonResponse","Result":1,"ServerName":"SC"}`)
	m, err := Decode(seg, EncodingJSON)
	require.NoError(t, err)

	resp, ok := m.(*LogonResponse)
	require.True(t, ok, "string type names decode the same as integer codes")
	assert.Equal(t, int32(1), resp.Result)

	seg = []byte(`{"Type":"Heartbeat","NumDroppedMessages":3,"CurrentDateTime":42}`)
	m, err = Decode(seg, EncodingJSON)
	require.NoError(t, err)
	hb, ok := m.(*Heartbeat)
	require.True(t, ok)
	assert.Equal(t, uint32(3), hb.NumDroppedMessages)
}

func TestDecodeJSON_UnknownTypeIsRaw(t *testing.T) {
	seg := []byte(`{"Type":507,"Symbol":"ESZ5","MinPriceIncrement":0.25}`)
	m, err := Decode(seg, EncodingJSON)
	require.NoError(t, err, "unknown message types must not fail decoding")

	raw, ok := m.(*RawMessage)
	require.True(t, ok)
	assert.Equal(t, MessageType(507), raw.TypeCode)
	assert.Equal(t, "ESZ5", raw.Fields["Symbol"])
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"Type":2,"Result":`), EncodingJSON)
	require.Error(t, err)

	var merr *MalformedMessageError
	assert.ErrorAs(t, err, &merr)
}

func TestBinaryHeartbeat_RoundTrip(t *testing.T) {
	in := &Heartbeat{NumDroppedMessages: 7, CurrentDateTime: 1699999999}
	data, err := Encode(in, EncodingBinary)
	require.NoError(t, err)
	require.Len(t, data, binaryHeartbeatSize)

	assert.Equal(t, uint16(binaryHeartbeatSize), binary.LittleEndian.Uint16(data[0:2]))
	assert.Equal(t, uint16(TypeHeartbeat), binary.LittleEndian.Uint16(data[2:4]))

	m, err := Decode(data, EncodingBinary)
	require.NoError(t, err)
	out, ok := m.(*Heartbeat)
	require.True(t, ok)
	assert.Equal(t, in.NumDroppedMessages, out.NumDroppedMessages)
	assert.Equal(t, in.CurrentDateTime, out.CurrentDateTime)
}

func TestBinaryLogon_RoundTrip(t *testing.T) {
	req := &LogonRequest{
		ProtocolVersion:            ProtocolVersion,
		Username:                   "user",
		Password:                   "secret",
		GeneralTextData:            "dtc-feed",
		HeartbeatIntervalInSeconds: 30,
		ClientName:                 "dtc-feed",
	}
	data, err := Encode(req, EncodingBinary)
	require.NoError(t, err)
	require.Len(t, data, binaryLogonRequestSize)

	m, err := Decode(data, EncodingBinary)
	require.NoError(t, err)
	got, ok := m.(*LogonRequest)
	require.True(t, ok)
	assert.Equal(t, "user", got.Username)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, int32(30), got.HeartbeatIntervalInSeconds)
	assert.Equal(t, "dtc-feed", got.ClientName)

	resp := &LogonResponse{ProtocolVersion: ProtocolVersion, Result: 1, ResultText: "ok", ServerName: "SC"}
	data, err = Encode(resp, EncodingBinary)
	require.NoError(t, err)
	m, err = Decode(data, EncodingBinary)
	require.NoError(t, err)
	gotResp, ok := m.(*LogonResponse)
	require.True(t, ok)
	assert.Equal(t, int32(1), gotResp.Result)
	assert.Equal(t, "ok", gotResp.ResultText)
	assert.Equal(t, "SC", gotResp.ServerName)
}

func TestBinary_FixedStringTruncation(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	req := &LogonRequest{Username: string(long)}
	data, err := Encode(req, EncodingBinary)
	require.NoError(t, err)
	require.Len(t, data, binaryLogonRequestSize, "oversized fields truncate instead of overflowing the layout")

	m, err := Decode(data, EncodingBinary)
	require.NoError(t, err)
	got := m.(*LogonRequest)
	assert.Len(t, got.Username, 31, "fixed 32-byte field keeps a terminating NUL")
}

func TestBinary_MarketDataHasNoLayout(t *testing.T) {
	_, err := Encode(&MarketDataRequest{Symbol: "ESZ5"}, EncodingBinary)
	require.Error(t, err)
}

func TestDecodeBinary_SizeMismatch(t *testing.T) {
	data, err := Encode(&Heartbeat{}, EncodingBinary)
	require.NoError(t, err)

	// lie about the size without changing the frame length
	binary.LittleEndian.PutUint16(data[0:2], uint16(len(data)+4))
	_, err = Decode(data, EncodingBinary)
	require.Error(t, err)

	var merr *MalformedMessageError
	assert.ErrorAs(t, err, &merr)
}

func TestDecodeBinary_UnknownTypeIsRaw(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], 8)
	binary.LittleEndian.PutUint16(data[2:4], 999)

	m, err := Decode(data, EncodingBinary)
	require.NoError(t, err)
	raw, ok := m.(*RawMessage)
	require.True(t, ok)
	assert.Equal(t, MessageType(999), raw.TypeCode)
}
