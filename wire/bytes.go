// Package wire implements the framed multiplexing transport: frame codec,
// header compression, stream lifecycle and connection management.
package wire

import (
	"unsafe"
)

// Uint24ToBytes packs n into the low 24 bits of b[0:3], big-endian.
func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// BytesToUint24 reads a 24-bit big-endian unsigned integer from b[0:3].
func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32ToBytes packs n into b[0:4], big-endian.
func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// BytesToUint32 reads a 32-bit big-endian unsigned integer from b[0:4].
func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// AppendUint32 appends n to dst, big-endian.
func AppendUint32(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// MaskStreamID clears the reserved high bit of a 32-bit stream id field.
func MaskStreamID(n uint32) uint32 {
	return n &^ (1 << 31)
}

// Resize grows b (within its capacity where possible) to exactly neededLen.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// b2s converts a byte slice to a string without copying. The caller must not
// mutate b while the returned string is alive.
func b2s(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// s2b converts a string to a byte slice without copying. The returned slice
// must not be mutated.
func s2b(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// EqualsFold reports whether a and b are equal, ignoring ASCII case.
func EqualsFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i]|0x20 != b[i]|0x20 {
			return false
		}
	}
	return true
}

// ToLower lowercases b in place using the ASCII OR-0x20 trick and returns it.
func ToLower(b []byte) []byte {
	for i, c := range b {
		b[i] = c | 0x20
	}
	return b
}
