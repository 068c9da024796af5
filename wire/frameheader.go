package wire

import (
	"bufio"
	"io"
	"sync"
)

// DefaultFrameSize is the byte length of a frame header (not including the
// payload).
const DefaultFrameSize = 9

const defaultMaxFrameLen = 1 << 14

// FrameHeader is a pooled cursor pairing a parsed 9-byte frame header with
// its typed payload. Callers obtain one via AcquireFrameHeader, populate or
// read its Frame via SetBody/Body, and must ReleaseFrameHeader when done.
type FrameHeader struct {
	length     int
	kind       FrameType
	flags      FrameFlags
	stream     uint32
	maxLen     uint32
	rawHeader  [DefaultFrameSize]byte
	rawPayload []byte
	fr         Frame
}

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{maxLen: defaultMaxFrameLen}
	},
}

// AcquireFrameHeader returns a FrameHeader from the pool, reset to zero
// values with the default max payload length.
func AcquireFrameHeader() *FrameHeader {
	return frameHeaderPool.Get().(*FrameHeader)
}

// ReleaseFrameHeader resets fh and returns it (and its body, if any) to
// their pools.
func ReleaseFrameHeader(fh *FrameHeader) {
	fh.Reset()
	frameHeaderPool.Put(fh)
}

// Reset clears fh, releasing any attached frame body to its pool.
func (fh *FrameHeader) Reset() {
	if fh.fr != nil {
		releaseFrame(fh.fr)
		fh.fr = nil
	}
	fh.length = 0
	fh.kind = 0
	fh.flags = 0
	fh.stream = 0
	fh.rawPayload = fh.rawPayload[:0]
	fh.maxLen = defaultMaxFrameLen
}

func (fh *FrameHeader) Type() FrameType       { return fh.kind }
func (fh *FrameHeader) Flags() FrameFlags     { return fh.flags }
func (fh *FrameHeader) SetFlags(f FrameFlags) { fh.flags = f }
func (fh *FrameHeader) Stream() uint32        { return fh.stream }
func (fh *FrameHeader) SetStream(id uint32)   { fh.stream = MaskStreamID(id) }
func (fh *FrameHeader) Len() int              { return fh.length }
func (fh *FrameHeader) MaxLen() uint32        { return fh.maxLen }
func (fh *FrameHeader) SetMaxLen(n uint32)    { fh.maxLen = n }

// Body returns the frame payload currently attached to fh.
func (fh *FrameHeader) Body() Frame { return fh.fr }

// SetBody attaches fr as fh's payload and records its type code.
func (fh *FrameHeader) SetBody(fr Frame) {
	fh.fr = fr
	fh.kind = fr.Type()
}

// Payload returns the raw bytes most recently read into (or staged for
// write from) fh; valid during Deserialize/Serialize.
func (fh *FrameHeader) Payload() []byte { return fh.rawPayload }

// SetPayload stages b as fh's raw payload for the next WriteTo.
func (fh *FrameHeader) SetPayload(b []byte) { fh.rawPayload = b }

func (fh *FrameHeader) checkLen() error {
	if fh.length > (1<<24 - 1) {
		return ErrPayloadExceeds
	}
	if fh.maxLen != 0 && uint32(fh.length) > fh.maxLen {
		return ErrPayloadExceeds
	}
	return nil
}

// parseHeader decodes the 9-byte raw header into fh's fields.
func (fh *FrameHeader) parseHeader(b []byte) error {
	_ = b[8]
	fh.length = int(BytesToUint24(b[0:3]))
	fh.kind = FrameType(b[3])
	fh.flags = FrameFlags(b[4])
	fh.stream = MaskStreamID(BytesToUint32(b[5:9]))
	return fh.checkLen()
}

// writeHeader serializes fh's fields (with the given payload length) into
// fh.rawHeader and returns the slice.
func (fh *FrameHeader) writeHeader(payloadLen int) []byte {
	Uint24ToBytes(fh.rawHeader[0:3], uint32(payloadLen))
	fh.rawHeader[3] = byte(fh.kind)
	fh.rawHeader[4] = byte(fh.flags)
	Uint32ToBytes(fh.rawHeader[5:9], fh.stream)
	return fh.rawHeader[:]
}

// ReadFrameFrom reads one frame (header + payload) from br with the default
// payload ceiling.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, defaultMaxFrameLen)
}

// ReadFrameFromWithSize reads one frame from br, rejecting a payload larger
// than maxLen (the peer's advertised MaxFrameSize).
func ReadFrameFromWithSize(br *bufio.Reader, maxLen uint32) (*FrameHeader, error) {
	fh := AcquireFrameHeader()
	fh.maxLen = maxLen
	if err := fh.readFrom(br); err != nil {
		ReleaseFrameHeader(fh)
		return nil, err
	}
	return fh, nil
}

func (fh *FrameHeader) readFrom(br *bufio.Reader) error {
	var header [DefaultFrameSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return err
	}
	if err := fh.parseHeader(header[:]); err != nil {
		return err
	}
	fr, ok := newFrame(fh.kind)
	if !ok {
		return ErrUnknownFrameType
	}
	payload := make([]byte, fh.length)
	if fh.length > 0 {
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}
	}
	fh.rawPayload = payload
	fh.fr = fr
	return fr.Deserialize(fh)
}

// WriteTo serializes fh's attached frame and writes header+payload to bw.
func (fh *FrameHeader) WriteTo(bw *bufio.Writer) (int64, error) {
	if fh.fr == nil {
		return 0, ErrUnknownFrameType
	}
	fh.rawPayload = fh.rawPayload[:0]
	fh.fr.Serialize(fh)
	fh.length = len(fh.rawPayload)
	if err := fh.checkLen(); err != nil {
		return 0, err
	}
	header := fh.writeHeader(fh.length)
	n, err := bw.Write(header)
	if err != nil {
		return int64(n), err
	}
	if fh.length > 0 {
		m, err := bw.Write(fh.rawPayload)
		n += m
		if err != nil {
			return int64(n), err
		}
	}
	return int64(n), nil
}
