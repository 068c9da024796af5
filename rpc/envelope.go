package rpc

import (
	"errors"

	"github.com/valyala/bytebufferpool"

	"github.com/mux2rpc/mux2rpc/wire"
)

// EnvelopeHeaderLen is the byte length of the envelope prefix: 1 byte
// compression flag + 4 bytes big-endian message length.
const EnvelopeHeaderLen = 5

// ErrShortEnvelope is returned when fewer than EnvelopeHeaderLen bytes, or
// fewer than the declared message length, are available.
var ErrShortEnvelope = errors.New("rpc: short message envelope")

// ParseEnvelope reads one envelope-prefixed message from the front of b,
// returning the compression flag, the message body, and the remaining
// bytes after it (for a buffer holding more than one message, as a future
// streaming extension would).
func ParseEnvelope(b []byte) (compressed bool, body []byte, rest []byte, err error) {
	if len(b) < EnvelopeHeaderLen {
		return false, nil, nil, ErrShortEnvelope
	}
	compressed = b[0] != 0
	length := wire.BytesToUint32(b[1:5])
	b = b[EnvelopeHeaderLen:]
	if uint64(len(b)) < uint64(length) {
		return false, nil, nil, ErrShortEnvelope
	}
	return compressed, b[:length], b[length:], nil
}

// AppendEnvelope appends the envelope-prefixed encoding of an uncompressed
// message body to dst; the compression flag is always zero on emit.
func AppendEnvelope(dst *bytebufferpool.ByteBuffer, body []byte) {
	dst.WriteByte(0)
	var lenBuf [4]byte
	wire.Uint32ToBytes(lenBuf[:], uint32(len(body)))
	dst.Write(lenBuf[:])
	dst.Write(body)
}
