package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, fh *FrameHeader) *FrameHeader {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)
	if _, err := fh.WriteTo(bw); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	br := bufio.NewReader(buf)
	out, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("ReadFrameFrom: %v", err)
	}
	return out
}

func TestDataFrameRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(3)
	d := AcquireData()
	d.SetData([]byte("payload"))
	d.SetEndStream(true)
	fh.SetBody(d)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	if out.Type() != FrameData {
		t.Fatalf("type = %s, want DATA", out.Type())
	}
	if out.Stream() != 3 {
		t.Fatalf("stream = %d, want 3", out.Stream())
	}
	gotData := out.Body().(*Data)
	if string(gotData.Data()) != "payload" {
		t.Fatalf("data = %q, want %q", gotData.Data(), "payload")
	}
	if !gotData.EndStream() {
		t.Fatal("expected END_STREAM to survive the round trip")
	}
}

func TestHeadersFrameRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(5)
	h := AcquireHeaders()
	h.SetRawHeaders([]byte{0x82, 0x86})
	h.SetEndHeaders(true)
	fh.SetBody(h)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	gotHeaders := out.Body().(*Headers)
	if !bytes.Equal(gotHeaders.RawHeaders(), []byte{0x82, 0x86}) {
		t.Fatalf("raw headers = %v, want %v", gotHeaders.RawHeaders(), []byte{0x82, 0x86})
	}
	if !gotHeaders.EndHeaders() {
		t.Fatal("expected END_HEADERS to survive the round trip")
	}
	if gotHeaders.EndStream() {
		t.Fatal("did not set END_STREAM, should not have round-tripped set")
	}
}

func TestSettingsFrameRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(0)
	s := AcquireSettingsFrame()
	s.Values().HeaderTableSize = 2048
	s.Values().EnablePush = false
	fh.SetBody(s)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*SettingsFrame)
	if got.Ack() {
		t.Fatal("did not set ACK, should not have round-tripped set")
	}
	if got.Values().HeaderTableSize != 2048 {
		t.Fatalf("HeaderTableSize = %d, want 2048", got.Values().HeaderTableSize)
	}
	if got.Values().EnablePush {
		t.Fatal("EnablePush should have round-tripped false")
	}
}

func TestSettingsAckRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(0)
	s := AcquireSettingsFrame()
	s.SetAck(true)
	fh.SetBody(s)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	if !out.Body().(*SettingsFrame).Ack() {
		t.Fatal("expected ACK to survive the round trip")
	}
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(7)
	wu := AcquireWindowUpdate()
	wu.SetIncrement(65535)
	fh.SetBody(wu)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	if got := out.Body().(*WindowUpdate).Increment(); got != 65535 {
		t.Fatalf("increment = %d, want 65535", got)
	}
}

func TestPingRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(0)
	p := AcquirePing()
	p.SetData([8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	fh.SetBody(p)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Ping)
	if got.Ack() {
		t.Fatal("did not set ACK, should not have round-tripped set")
	}
	if got.Data() != [8]byte{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Fatalf("ping data = %v", got.Data())
	}
}

func TestGoAwayRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(0)
	ga := AcquireGoAway()
	ga.SetCode(ProtocolError)
	ga.SetLastStream(9)
	fh.SetBody(ga)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*GoAway)
	if got.Code() != ProtocolError {
		t.Fatalf("code = %s, want %s", got.Code(), ProtocolError)
	}
	if got.LastStream() != 9 {
		t.Fatalf("last stream id = %d, want 9", got.LastStream())
	}
}

func TestRstStreamRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(11)
	rst := AcquireRstStream()
	rst.SetCode(RefusedStreamError)
	fh.SetBody(rst)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	if got := out.Body().(*RstStream).Code(); got != RefusedStreamError {
		t.Fatalf("code = %s, want %s", got, RefusedStreamError)
	}
}

func TestPayloadLengthBoundaries(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(1)
	fh.SetMaxLen(0) // no advertised ceiling: only the 24-bit wire limit applies
	d := AcquireData()
	d.SetData(make([]byte, 0xFFFFFE))
	fh.SetBody(d)

	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)
	if _, err := fh.WriteTo(bw); err != nil {
		t.Fatalf("WriteTo with length 0xFFFFFE: %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	out, err := ReadFrameFromWithSize(bufio.NewReader(buf), 0)
	if err != nil {
		t.Fatalf("ReadFrameFromWithSize: %v", err)
	}
	defer ReleaseFrameHeader(out)
	if out.Len() != 0xFFFFFE {
		t.Fatalf("parsed length = %#x, want 0xFFFFFE", out.Len())
	}

	over := AcquireFrameHeader()
	defer ReleaseFrameHeader(over)
	over.SetStream(1)
	over.SetMaxLen(0)
	big := AcquireData()
	big.SetData(make([]byte, 0x1000000))
	over.SetBody(big)
	if _, err := over.WriteTo(bufio.NewWriter(bytes.NewBuffer(nil))); err != ErrPayloadExceeds {
		t.Fatalf("err = %v, want ErrPayloadExceeds for a 2^24-byte payload", err)
	}
}

func TestStreamIDReservedBitMaskedOnParse(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, // length 0
		0x04,                   // SETTINGS
		0x00,                   // no flags
		0x80, 0x00, 0x00, 0x03, // stream id 3 with the reserved bit set
	}
	fh, err := ReadFrameFrom(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadFrameFrom: %v", err)
	}
	defer ReleaseFrameHeader(fh)
	if fh.Stream() != 3 {
		t.Fatalf("stream = %d, want 3 with the reserved bit cleared", fh.Stream())
	}
}

func TestUnknownFrameTypeRejected(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00,
		0x0A, // one past CONTINUATION
		0x00,
		0x00, 0x00, 0x00, 0x01,
	}
	if _, err := ReadFrameFrom(bufio.NewReader(bytes.NewReader(raw))); err != ErrUnknownFrameType {
		t.Fatalf("err = %v, want ErrUnknownFrameType", err)
	}
}

func TestDataFramePaddingRoundTrip(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(3)
	d := AcquireData()
	d.SetData([]byte("payload"))
	d.SetPadding(true)
	fh.SetBody(d)

	out := roundTrip(t, fh)
	defer ReleaseFrameHeader(out)

	got := out.Body().(*Data)
	if string(got.Data()) != "payload" {
		t.Fatalf("data = %q, want %q after padding was stripped", got.Data(), "payload")
	}
	if !got.Padding() {
		t.Fatal("expected the PADDED flag to survive the round trip")
	}
}
