// Package hpack implements the header-list compression sub-protocol: a
// static table, a size-bounded dynamic table, variable-length integer
// coding and a prefix-coded byte compression scheme for header strings.
package hpack

import "sync"

// HeaderField is one (name, value) pair of a header list.
type HeaderField struct {
	key       []byte
	value     []byte
	sensitive bool
}

var headerFieldPool = sync.Pool{New: func() interface{} { return &HeaderField{} }}

func AcquireHeaderField() *HeaderField { return headerFieldPool.Get().(*HeaderField) }

func ReleaseHeaderField(hf *HeaderField) {
	hf.Reset()
	headerFieldPool.Put(hf)
}

func (hf *HeaderField) Reset() {
	hf.key = hf.key[:0]
	hf.value = hf.value[:0]
	hf.sensitive = false
}

// Size is the RFC 7541 dynamic-table accounting size of this entry.
func (hf *HeaderField) Size() int {
	return len(hf.key) + len(hf.value) + 32
}

func (hf *HeaderField) Key() string        { return string(hf.key) }
func (hf *HeaderField) Value() string      { return string(hf.value) }
func (hf *HeaderField) KeyBytes() []byte   { return hf.key }
func (hf *HeaderField) ValueBytes() []byte { return hf.value }

func (hf *HeaderField) Set(key, value string) {
	hf.SetKey(key)
	hf.SetValue(value)
}

func (hf *HeaderField) SetBytes(key, value []byte) {
	hf.SetKeyBytes(key)
	hf.SetValueBytes(value)
}

func (hf *HeaderField) SetKey(key string)      { hf.key = append(hf.key[:0], key...) }
func (hf *HeaderField) SetValue(v string)      { hf.value = append(hf.value[:0], v...) }
func (hf *HeaderField) SetKeyBytes(b []byte)   { hf.key = append(hf.key[:0], b...) }
func (hf *HeaderField) SetValueBytes(b []byte) { hf.value = append(hf.value[:0], b...) }

func (hf *HeaderField) IsPseudo() bool {
	return len(hf.key) > 0 && hf.key[0] == ':'
}

func (hf *HeaderField) IsSensitive() bool   { return hf.sensitive }
func (hf *HeaderField) SetSensitive(v bool) { hf.sensitive = v }

func (hf *HeaderField) CopyTo(dst *HeaderField) {
	dst.key = append(dst.key[:0], hf.key...)
	dst.value = append(dst.value[:0], hf.value...)
	dst.sensitive = hf.sensitive
}

func (hf *HeaderField) Equal(other *HeaderField) bool {
	return string(hf.key) == string(other.key) && string(hf.value) == string(other.value)
}

func (hf *HeaderField) String() string {
	return hf.Key() + ": " + hf.Value()
}

// List is an ordered header list: a multimap of case-insensitive name to
// value, with pseudo-headers (name beginning with ':') preceding ordinary
// headers on emit.
type List struct {
	fields []*HeaderField
}

// Add appends a field to the list, copying key/value. key is lowercased
// first; field names are case-insensitive on the wire and must be emitted
// in lowercase.
func (l *List) Add(key, value string) {
	hf := AcquireHeaderField()
	hf.Set(lowerString(key), value)
	l.fields = append(l.fields, hf)
}

func (l *List) AddBytes(key, value []byte) {
	hf := AcquireHeaderField()
	hf.SetKeyBytes(lowerBytes(key))
	hf.SetValueBytes(value)
	l.fields = append(l.fields, hf)
}

// lowerBytes returns b with any ASCII uppercase letters folded to
// lowercase, copying into a fresh slice rather than mutating the caller's.
func lowerBytes(b []byte) []byte {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			out := append([]byte(nil), b...)
			for ; i < len(out); i++ {
				if c := out[i]; c >= 'A' && c <= 'Z' {
					out[i] = c + ('a' - 'A')
				}
			}
			return out
		}
	}
	return b
}

// AddField appends hf directly (ownership transfers to the list).
func (l *List) AddField(hf *HeaderField) {
	l.fields = append(l.fields, hf)
}

// Get returns the first value for key (case-sensitive on the stored,
// already-lowercased form), or "" if absent.
func (l *List) Get(key string) string {
	for _, hf := range l.fields {
		if hf.Key() == key {
			return hf.Value()
		}
	}
	return ""
}

func (l *List) Fields() []*HeaderField { return l.fields }
func (l *List) Len() int               { return len(l.fields) }

// Reset releases all fields back to the pool and empties the list.
func (l *List) Reset() {
	for _, hf := range l.fields {
		ReleaseHeaderField(hf)
	}
	l.fields = l.fields[:0]
}

// Sorted returns fields with pseudo-headers moved before ordinary headers,
// preserving relative order within each group. Used when normalizing for
// comparison and when emitting the wire form.
func (l *List) Sorted() []*HeaderField {
	out := make([]*HeaderField, 0, len(l.fields))
	for _, hf := range l.fields {
		if hf.IsPseudo() {
			out = append(out, hf)
		}
	}
	for _, hf := range l.fields {
		if !hf.IsPseudo() {
			out = append(out, hf)
		}
	}
	return out
}
