package dtc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Binary frame size sanity bounds. A declared size outside this range means
// the stream is corrupt; binary framing has no resync token, so the
// connection must be torn down.
const (
	minBinaryFrameSize = 4
	maxBinaryFrameSize = 65536
)

// Framer converts an inbound byte stream into complete wire messages,
// buffering partial reads across chunks. It never emits a partial message,
// never drops bytes, and preserves arrival order.
type Framer struct {
	enc Encoding
	buf []byte
}

func NewFramer(enc Encoding) *Framer {
	return &Framer{enc: enc}
}

// Encoding returns the framing mode currently in effect.
func (f *Framer) Encoding() Encoding { return f.enc }

// SetEncoding switches framing mode. Only valid between messages; the
// session switches immediately after consuming an EncodingResponse, when
// the buffer holds no partial frame of the old encoding.
func (f *Framer) SetEncoding(enc Encoding) { f.enc = enc }

// Push appends a chunk and returns every complete message now available.
// JSON messages are returned without their NUL terminator.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)
	switch f.enc {
	case EncodingJSON:
		return f.splitJSON(), nil
	case EncodingBinary:
		return f.splitBinary()
	default:
		return nil, fmt.Errorf("unsupported encoding %d", f.enc)
	}
}

func (f *Framer) splitJSON() [][]byte {
	var frames [][]byte
	for {
		i := bytes.IndexByte(f.buf, 0x00)
		if i < 0 {
			break
		}
		seg := f.buf[:i]
		f.buf = f.buf[i+1:]
		if len(bytes.TrimSpace(seg)) == 0 {
			continue
		}
		frames = append(frames, append([]byte(nil), seg...))
	}
	// keep the trailing partial segment without pinning the old array
	if len(frames) > 0 {
		f.buf = append([]byte(nil), f.buf...)
	}
	return frames
}

func (f *Framer) splitBinary() ([][]byte, error) {
	var frames [][]byte
	for len(f.buf) >= 2 {
		size := int(binary.LittleEndian.Uint16(f.buf[0:2]))
		if size < minBinaryFrameSize || size > maxBinaryFrameSize {
			return frames, fmt.Errorf("%w: declared frame size %d", ErrProtocolDesync, size)
		}
		if len(f.buf) < size {
			break
		}
		frames = append(frames, append([]byte(nil), f.buf[:size]...))
		f.buf = f.buf[size:]
	}
	if len(frames) > 0 {
		f.buf = append([]byte(nil), f.buf...)
	}
	return frames, nil
}
