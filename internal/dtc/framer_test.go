package dtc

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonStream(msgs ...string) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m...)
		out = append(out, 0x00)
	}
	return out
}

func TestFramerJSON_ChunkSplits(t *testing.T) {
	msgs := []string{
		`{"Type":7,"ProtocolVersion":8,"Encoding":2}`,
		`{"Type":3,"NumDroppedMessages":0,"CurrentDateTime":1700000000}`,
		`{"Type":104,"SymbolID":1,"LastTradePrice":50000.5}`,
	}
	stream := jsonStream(msgs...)

	// every chunk size from one byte at a time up to the whole stream must
	// yield the same frames in the same order
	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		t.Run(fmt.Sprintf("chunk_%d", chunkSize), func(t *testing.T) {
			f := NewFramer(EncodingJSON)
			var got []string
			for off := 0; off < len(stream); off += chunkSize {
				end := off + chunkSize
				if end > len(stream) {
					end = len(stream)
				}
				frames, err := f.Push(stream[off:end])
				require.NoError(t, err)
				for _, fr := range frames {
					got = append(got, string(fr))
				}
			}
			assert.Equal(t, msgs, got)
		})
	}
}

func TestFramerJSON_PartialTailRetained(t *testing.T) {
	f := NewFramer(EncodingJSON)

	frames, err := f.Push([]byte(`{"Type":3}`))
	require.NoError(t, err)
	assert.Empty(t, frames, "no NUL terminator yet")

	frames, err = f.Push([]byte{0x00})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"Type":3}`, string(frames[0]))
}

func TestFramerJSON_EmptySegmentsDiscarded(t *testing.T) {
	f := NewFramer(EncodingJSON)
	frames, err := f.Push([]byte("\x00  \x00{\"Type\":3}\x00\x00"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"Type":3}`, string(frames[0]))
}

func TestFramerBinary_ChunkSplits(t *testing.T) {
	hb, err := Encode(&Heartbeat{CurrentDateTime: 99}, EncodingBinary)
	require.NoError(t, err)
	logon, err := Encode(&LogonResponse{Result: 1}, EncodingBinary)
	require.NoError(t, err)
	stream := append(append([]byte(nil), hb...), logon...)

	f := NewFramer(EncodingBinary)
	var got [][]byte
	for _, b := range stream { // one byte at a time
		frames, err := f.Push([]byte{b})
		require.NoError(t, err)
		got = append(got, frames...)
	}
	require.Len(t, got, 2)
	assert.Equal(t, hb, got[0])
	assert.Equal(t, logon, got[1])
}

func TestFramerBinary_ImplausibleSizeIsDesync(t *testing.T) {
	f := NewFramer(EncodingBinary)

	// declared size below the 4-byte header minimum means the stream can
	// never be resynchronized
	corrupt := make([]byte, 8)
	binary.LittleEndian.PutUint16(corrupt[0:2], 2)
	_, err := f.Push(corrupt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolDesync)
}

func TestFramerBinary_DesyncAfterValidFrames(t *testing.T) {
	hb, err := Encode(&Heartbeat{}, EncodingBinary)
	require.NoError(t, err)

	corrupt := make([]byte, 4)
	binary.LittleEndian.PutUint16(corrupt[0:2], 0)

	f := NewFramer(EncodingBinary)
	frames, err := f.Push(append(append([]byte(nil), hb...), corrupt...))
	assert.ErrorIs(t, err, ErrProtocolDesync)
	require.Len(t, frames, 1, "frames completed before the corruption are still delivered")
	assert.Equal(t, hb, frames[0])
}

func TestFramerBinary_WaitsForFullFrame(t *testing.T) {
	hb, err := Encode(&Heartbeat{}, EncodingBinary)
	require.NoError(t, err)

	f := NewFramer(EncodingBinary)
	frames, err := f.Push(hb[:10])
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = f.Push(hb[10:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, hb, frames[0])
}
