package hpack

import "testing"

func decodeAll(t *testing.T, d *Decoder, block []byte) *List {
	t.Helper()
	list := &List{}
	if err := d.Decode(list, block); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return list
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	list := &List{}
	list.Add(":method", "POST")
	list.Add(":path", "/echo.Echo/Call")
	list.Add("content-type", "application/grpc")
	list.Add("x-custom", "hello")

	block := enc.Encode(nil, list)
	got := decodeAll(t, dec, block)

	if got.Len() != list.Len() {
		t.Fatalf("decoded %d fields, want %d", got.Len(), list.Len())
	}
	for i, hf := range list.Fields() {
		gf := got.Fields()[i]
		if gf.Key() != hf.Key() || gf.Value() != hf.Value() {
			t.Fatalf("field %d = %q:%q, want %q:%q", i, gf.Key(), gf.Value(), hf.Key(), hf.Value())
		}
	}
}

func TestEncodeReusesStaticIndex(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	list := &List{}
	list.Add(":method", "GET")
	block := enc.Encode(nil, list)

	// :method GET is static index 2: a single fully-indexed byte (0x80|2).
	if len(block) != 1 || block[0] != 0x82 {
		t.Fatalf("block = %v, want a single indexed byte 0x82", block)
	}

	got := decodeAll(t, dec, block)
	if got.Get(":method") != "GET" {
		t.Fatalf("decoded :method = %q, want GET", got.Get(":method"))
	}
}

func TestEncodeSecondOccurrenceUsesDynamicIndex(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	first := &List{}
	first.Add("x-custom", "v1")
	block := enc.Encode(nil, first)
	decodeAll(t, dec, block)

	second := &List{}
	second.Add("x-custom", "v1")
	block2 := enc.Encode(nil, second)

	// A repeated exact match must now be a single indexed byte referencing
	// the dynamic entry (index 62, the first slot after the static table).
	if len(block2) != 1 {
		t.Fatalf("second block = %v, want a single indexed byte", block2)
	}

	got := decodeAll(t, dec, block2)
	if got.Get("x-custom") != "v1" {
		t.Fatalf("decoded x-custom = %q, want v1", got.Get("x-custom"))
	}
}

func TestDynamicTableSizeUpdateHandshake(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)
	dec.SetPeerMaxTableSize(4096)

	enc.SetMaxTableSize(100)
	if enc.MaxTableSize() != 100 {
		t.Fatalf("MaxTableSize() = %d, want 100", enc.MaxTableSize())
	}

	list := &List{}
	list.Add("x-custom", "v1")
	block := enc.Encode(nil, list)

	decodeAll(t, dec, block)
	if dec.DynamicTable().Max() != 100 {
		t.Fatalf("decoder table max = %d, want 100 after size-update directive", dec.DynamicTable().Max())
	}
}

func TestDecodeRejectsTableUpdateAfterHeader(t *testing.T) {
	dec := NewDecoder(4096)
	dec.SetPeerMaxTableSize(4096)

	// Manually build: an indexed header (0x82, :method GET) followed by a
	// dynamic-table-size-update directive (0x20, size 0).
	block := []byte{0x82, 0x20}
	list := &List{}
	err := dec.Decode(list, block)
	if err != ErrTableUpdateAfterHeader {
		t.Fatalf("err = %v, want ErrTableUpdateAfterHeader", err)
	}
}

func TestDecodeRejectsRepeatedTableUpdate(t *testing.T) {
	dec := NewDecoder(4096)
	dec.SetPeerMaxTableSize(4096)

	// Two consecutive size-update directives in the same block.
	block := writeInt(nil, 0x20, 5, 200)
	block = writeInt(block, 0x20, 5, 100)
	list := &List{}
	if err := dec.Decode(list, block); err != ErrTableUpdateRepeated {
		t.Fatalf("err = %v, want ErrTableUpdateRepeated", err)
	}
}

func TestDecodeRejectsTableUpdateTooLarge(t *testing.T) {
	dec := NewDecoder(4096)
	dec.SetPeerMaxTableSize(100)

	// Size-update directive (prefix 001, 5-bit length) requesting 200,
	// which exceeds the peer ceiling of 100.
	block := writeInt(nil, 0x20, 5, 200)
	list := &List{}
	err := dec.Decode(list, block)
	if err != ErrTableUpdateTooLarge {
		t.Fatalf("err = %v, want ErrTableUpdateTooLarge", err)
	}
}

func TestEncodeFieldModeNeverNotIndexed(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	block := enc.EncodeField(nil, "authorization", "secret-token", ModeNever)
	if enc.dynamic.Len() != 0 {
		t.Fatal("never-indexed field must not be inserted into the dynamic table")
	}

	list := &List{}
	if err := dec.Decode(list, block); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if list.Get("authorization") != "secret-token" {
		t.Fatalf("decoded authorization = %q, want secret-token", list.Get("authorization"))
	}
}
