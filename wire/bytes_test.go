package wire

import "testing"

func TestUint24RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 255, 65535, 1<<24 - 1}
	b := make([]byte, 3)
	for _, n := range cases {
		Uint24ToBytes(b, n)
		if got := BytesToUint24(b); got != n {
			t.Fatalf("BytesToUint24(Uint24ToBytes(%d)) = %d", n, got)
		}
	}
}

func TestUint32RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 65535, 1<<31 - 1, 1<<32 - 1}
	b := make([]byte, 4)
	for _, n := range cases {
		Uint32ToBytes(b, n)
		if got := BytesToUint32(b); got != n {
			t.Fatalf("BytesToUint32(Uint32ToBytes(%d)) = %d", n, got)
		}
	}
}

func TestAppendUint32(t *testing.T) {
	dst := AppendUint32([]byte("prefix:"), 0x01020304)
	want := append([]byte("prefix:"), 0x01, 0x02, 0x03, 0x04)
	if string(dst) != string(want) {
		t.Fatalf("AppendUint32 = %v, want %v", dst, want)
	}
}

func TestMaskStreamID(t *testing.T) {
	if got := MaskStreamID(1 << 31); got != 0 {
		t.Fatalf("MaskStreamID(reserved bit only) = %d, want 0", got)
	}
	if got := MaskStreamID(1<<31 | 7); got != 7 {
		t.Fatalf("MaskStreamID(reserved bit | 7) = %d, want 7", got)
	}
}

func TestResizeGrows(t *testing.T) {
	b := make([]byte, 2, 8)
	out := Resize(b, 5)
	if len(out) != 5 {
		t.Fatalf("len = %d, want 5", len(out))
	}
}

func TestB2SAndS2B(t *testing.T) {
	s := "hello"
	b := s2b(s)
	if string(b) != s {
		t.Fatalf("s2b(%q) = %q", s, b)
	}
	if b2s(b) != s {
		t.Fatalf("b2s(s2b(%q)) = %q", s, b2s(b))
	}
}

func TestEqualsFoldAndToLower(t *testing.T) {
	if !EqualsFold([]byte("Content-Type"), []byte("content-type")) {
		t.Fatal("expected case-insensitive match")
	}
	if EqualsFold([]byte("abc"), []byte("ab")) {
		t.Fatal("expected length mismatch to fail")
	}
	got := ToLower([]byte("MiXeD-Case"))
	if string(got) != "mixed-case" {
		t.Fatalf("ToLower = %q, want mixed-case", got)
	}
}
