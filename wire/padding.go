package wire

import (
	"crypto/rand"

	"github.com/valyala/fastrand"
)

// cutPadding strips a PADDED-flag pad-length byte and trailing pad bytes
// from payload, returning the remaining content.
func cutPadding(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}
	pad := int(payload[0])
	if pad+1 > len(payload) {
		return payload[1:]
	}
	return payload[1 : len(payload)-pad]
}

// addPadding prepends a random pad length (9-255 bytes of padding) to b and
// appends that many random bytes, producing a PADDED-flag payload.
func addPadding(b []byte) []byte {
	n := int(fastrand.Uint32n(256-9)) + 9
	padded := make([]byte, 0, len(b)+n+1)
	padded = append(padded, byte(n))
	padded = append(padded, b...)
	pad := make([]byte, n)
	rand.Read(pad)
	return append(padded, pad...)
}
