package hpack

import "errors"

// ErrIllegalIndex is returned when an indexed header directive references
// index 0 or an index beyond both tables.
var ErrIllegalIndex = errors.New("hpack: illegal index")

// ErrTableUpdateAfterHeader is returned when a dynamic-table size update
// directive appears after a header has already been emitted in the same
// block; a size update must precede any emitted header.
var ErrTableUpdateAfterHeader = errors.New("hpack: table size update after header emitted")

// ErrTableUpdateTooLarge is returned when a dynamic-table size update asks
// for more than the peer's last-advertised maximum.
var ErrTableUpdateTooLarge = errors.New("hpack: table size update exceeds advertised maximum")

// ErrTableUpdateRepeated is returned when a header block carries more than
// one dynamic-table size update directive.
var ErrTableUpdateRepeated = errors.New("hpack: repeated table size update in one header block")

// IndexingMode selects how Encoder.EncodeField treats a header whose name
// (but not value) is already present in a table, or whose name and value
// are both absent from every table.
type IndexingMode uint8

const (
	// ModeAlways adds the field to the dynamic table (6-bit prefix, 01).
	ModeAlways IndexingMode = iota
	// ModeNever marks the field as never-indexed by intermediaries, but
	// this implementation does not otherwise distinguish it from
	// ModeNone on re-emission.
	ModeNever
	// ModeNone emits without adding to the dynamic table and without the
	// never-indexed sensitivity marker.
	ModeNone
)

// Encoder compresses header lists into header blocks for one connection's
// outbound direction. It owns the dynamic table on that side; never share
// an Encoder across connections.
type Encoder struct {
	dynamic       *DynamicTable
	pendingResize bool
}

// NewEncoder constructs an Encoder with the given initial dynamic-table
// maximum size.
func NewEncoder(maxTableSize int) *Encoder {
	return &Encoder{dynamic: NewDynamicTable(maxTableSize)}
}

// SetMaxTableSize resizes the encoder's dynamic table and records that the
// next call to Encode must emit a table-size-update directive first, so the
// peer's decoder stays in lockstep: a SETTINGS frame that lowers
// HeaderTableSize obliges the sender to shrink its own table before its
// next header block.
func (e *Encoder) SetMaxTableSize(max int) {
	if max == e.dynamic.Max() {
		return
	}
	e.dynamic.Resize(max)
	e.pendingResize = true
}

// MaxTableSize returns the encoder's current dynamic-table maximum.
func (e *Encoder) MaxTableSize() int { return e.dynamic.Max() }

// Encode appends the header-block encoding of list to dst using ModeAlways
// for any field that isn't an exact (name, value) match in either table.
// Pseudo-headers are emitted first. If a table resize is
// pending, a dynamic-table-size-update directive is emitted first.
func (e *Encoder) Encode(dst []byte, list *List) []byte {
	if e.pendingResize {
		dst = writeInt(dst, 0x20, 5, uint64(e.dynamic.Max()))
		e.pendingResize = false
	}
	for _, hf := range list.Sorted() {
		dst = e.EncodeField(dst, hf.Key(), hf.Value(), ModeAlways)
	}
	return dst
}

// EncodeField appends the header-block encoding of one (name, value) pair.
// name is lowercased first; field names are case-insensitive on the wire
// and must be emitted in lowercase.
func (e *Encoder) EncodeField(dst []byte, name, value string, mode IndexingMode) []byte {
	name = lowerString(name)
	exact, nameOnly := Find(e.dynamic, name, value)
	if exact != 0 {
		return writeInt(dst, 0x80, 7, uint64(exact))
	}

	switch mode {
	case ModeAlways:
		if nameOnly != 0 {
			dst = writeInt(dst, 0x40, 6, uint64(nameOnly))
		} else {
			dst = writeInt(dst, 0x40, 6, 0)
			dst = writeString(dst, name)
		}
		dst = writeString(dst, value)
		e.dynamic.Insert(name, value)
		return dst
	case ModeNever:
		if nameOnly != 0 {
			dst = writeInt(dst, 0x10, 4, uint64(nameOnly))
		} else {
			dst = writeInt(dst, 0x10, 4, 0)
			dst = writeString(dst, name)
		}
		return writeString(dst, value)
	default: // ModeNone
		if nameOnly != 0 {
			dst = writeInt(dst, 0x00, 4, uint64(nameOnly))
		} else {
			dst = writeInt(dst, 0x00, 4, 0)
			dst = writeString(dst, name)
		}
		return writeString(dst, value)
	}
}

// lowerString returns s with any ASCII uppercase letters folded to
// lowercase, avoiding an allocation when s is already lowercase.
func lowerString(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for ; i < len(b); i++ {
				if c := b[i]; c >= 'A' && c <= 'Z' {
					b[i] = c + ('a' - 'A')
				}
			}
			return string(b)
		}
	}
	return s
}

// writeString appends the 1-bit-short-coded-flag + 7-bit-prefix-length
// string literal encoding of s. Short-coding is always attempted; if it
// does not shrink s, the literal is emitted unencoded instead.
func writeString(dst []byte, s string) []byte {
	raw := []byte(s)
	enc := shortEncode(raw)
	if len(enc) < len(raw) {
		dst = writeInt(dst, 0x80, 7, uint64(len(enc)))
		return append(dst, enc...)
	}
	dst = writeInt(dst, 0x00, 7, uint64(len(raw)))
	return append(dst, raw...)
}

// Decoder decompresses header blocks for one connection's inbound
// direction. It owns the dynamic table on that side.
type Decoder struct {
	dynamic      *DynamicTable
	peerMaxTable int
}

// NewDecoder constructs a Decoder with the given initial dynamic-table
// maximum size. peerMaxTable should track the last HeaderTableSize setting
// advertised by the remote peer, the ceiling a size update may not exceed.
func NewDecoder(maxTableSize int) *Decoder {
	return &Decoder{dynamic: NewDynamicTable(maxTableSize), peerMaxTable: maxTableSize}
}

// SetPeerMaxTableSize records the ceiling a dynamic-table size update may
// not exceed, per the peer's most recent HeaderTableSize setting.
func (d *Decoder) SetPeerMaxTableSize(max int) { d.peerMaxTable = max }

// DynamicTable exposes the decoder's table, mainly for test assertions.
func (d *Decoder) DynamicTable() *DynamicTable { return d.dynamic }

// Decode scans block and appends every header it emits to list. At most one
// dynamic-table size update is permitted, and only before any header is
// emitted.
func (d *Decoder) Decode(list *List, block []byte) error {
	headerEmitted := false
	tableUpdated := false

	for len(block) > 0 {
		c := block[0]
		switch {
		case c&0x80 == 0x80: // indexed header field
			idx, n, ok := readInt(block, 7)
			if !ok {
				return ErrInvalidCompression
			}
			block = block[n:]
			if idx == 0 {
				return ErrIllegalIndex
			}
			name, value, ok := Lookup(d.dynamic, int(idx))
			if !ok {
				return ErrIllegalIndex
			}
			list.Add(name, value)
			headerEmitted = true

		case c&0xC0 == 0x40: // literal with incremental indexing
			idx, n, ok := readInt(block, 6)
			if !ok {
				return ErrInvalidCompression
			}
			block = block[n:]
			name, value, rest, err := d.readNameValue(idx, block)
			if err != nil {
				return err
			}
			block = rest
			d.dynamic.Insert(name, value)
			list.Add(name, value)
			headerEmitted = true

		case c&0xE0 == 0x20: // dynamic table size update
			if headerEmitted {
				return ErrTableUpdateAfterHeader
			}
			if tableUpdated {
				return ErrTableUpdateRepeated
			}
			tableUpdated = true
			newMax, n, ok := readInt(block, 5)
			if !ok {
				return ErrInvalidCompression
			}
			block = block[n:]
			if int(newMax) > d.peerMaxTable {
				return ErrTableUpdateTooLarge
			}
			d.dynamic.Resize(int(newMax))

		case c&0xF0 == 0x10: // literal never indexed
			idx, n, ok := readInt(block, 4)
			if !ok {
				return ErrInvalidCompression
			}
			block = block[n:]
			name, value, rest, err := d.readNameValue(idx, block)
			if err != nil {
				return err
			}
			block = rest
			list.Add(name, value)
			headerEmitted = true

		default: // 0000xxxx: literal without indexing
			idx, n, ok := readInt(block, 4)
			if !ok {
				return ErrInvalidCompression
			}
			block = block[n:]
			name, value, rest, err := d.readNameValue(idx, block)
			if err != nil {
				return err
			}
			block = rest
			list.Add(name, value)
			headerEmitted = true
		}
	}
	return nil
}

// readNameValue resolves a literal directive's name (from the table when
// idx != 0, otherwise as a following string literal) and always reads the
// value as a following string literal.
func (d *Decoder) readNameValue(idx uint64, block []byte) (name, value string, rest []byte, err error) {
	if idx == 0 {
		name, rest, err = readString(block)
		if err != nil {
			return "", "", nil, err
		}
	} else {
		var ok bool
		name, _, ok = Lookup(d.dynamic, int(idx))
		if !ok {
			return "", "", nil, ErrIllegalIndex
		}
		rest = block
	}
	value, rest, err = readString(rest)
	if err != nil {
		return "", "", nil, err
	}
	return name, value, rest, nil
}

// readString decodes the 1-bit-flag + 7-bit-prefix-length string literal at
// the start of b, returning the decoded bytes and the remaining input.
func readString(b []byte) (string, []byte, error) {
	if len(b) == 0 {
		return "", nil, ErrInvalidCompression
	}
	shortCoded := b[0]&0x80 == 0x80
	length, n, ok := readInt(b, 7)
	if !ok {
		return "", nil, ErrInvalidCompression
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return "", nil, ErrInvalidCompression
	}
	raw := b[:length]
	rest := b[length:]
	if !shortCoded {
		return string(raw), rest, nil
	}
	decoded, err := shortDecode(raw)
	if err != nil {
		return "", nil, err
	}
	return string(decoded), rest, nil
}

// ErrInvalidCompression is returned for any structurally malformed header
// block: truncated varints, truncated string literals, and the like.
var ErrInvalidCompression = errors.New("hpack: invalid compression")
