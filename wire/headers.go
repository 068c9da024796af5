package wire

import "sync"

// Headers carries a HEADERS frame: an optional priority prefix and a raw
// (still header-compressed) header block, plus the END_STREAM/END_HEADERS
// flags that drive the stream state machine.
type Headers struct {
	hasPadding  bool
	hasPriority bool
	depStream   uint32
	weight      uint8
	endStream   bool
	endHeaders  bool
	rawHeaders  []byte
}

var headersPool = sync.Pool{New: func() interface{} { return &Headers{} }}

func AcquireHeaders() *Headers { return headersPool.Get().(*Headers) }

func ReleaseHeaders(h *Headers) {
	h.Reset()
	headersPool.Put(h)
}

func (h *Headers) Type() FrameType { return FrameHeaders }

func (h *Headers) Reset() {
	h.hasPadding = false
	h.hasPriority = false
	h.depStream = 0
	h.weight = 0
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

func (h *Headers) CopyTo(dst *Headers) {
	dst.hasPadding = h.hasPadding
	dst.hasPriority = h.hasPriority
	dst.depStream = h.depStream
	dst.weight = h.weight
	dst.endStream = h.endStream
	dst.endHeaders = h.endHeaders
	dst.rawHeaders = append(dst.rawHeaders[:0], h.rawHeaders...)
}

func (h *Headers) RawHeaders() []byte          { return h.rawHeaders }
func (h *Headers) SetRawHeaders(b []byte)      { h.rawHeaders = append(h.rawHeaders[:0], b...) }
func (h *Headers) AppendRawHeaders(b []byte)   { h.rawHeaders = append(h.rawHeaders, b...) }
func (h *Headers) EndStream() bool             { return h.endStream }
func (h *Headers) SetEndStream(v bool)         { h.endStream = v }
func (h *Headers) EndHeaders() bool            { return h.endHeaders }
func (h *Headers) SetEndHeaders(v bool)        { h.endHeaders = v }
func (h *Headers) Padding() bool               { return h.hasPadding }
func (h *Headers) SetPadding(v bool)           { h.hasPadding = v }
func (h *Headers) Priority() bool              { return h.hasPriority }
func (h *Headers) SetPriority(dep uint32, w uint8) {
	h.hasPriority = true
	h.depStream = dep
	h.weight = w
}

// Deserialize extracts the (optionally padded, optionally prioritized)
// header-block bytes from the frame payload. It does not decompress them;
// Stream.Receive runs the decoder over each HEADERS and CONTINUATION
// fragment as it arrives, without joining the fragments first.
func (h *Headers) Deserialize(fh *FrameHeader) error {
	h.endStream = fh.Flags().Has(FlagEndStream)
	h.endHeaders = fh.Flags().Has(FlagEndHeaders)
	payload := fh.Payload()
	if fh.Flags().Has(FlagPadded) {
		h.hasPadding = true
		payload = cutPadding(payload)
	}
	if fh.Flags().Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrShortFrame
		}
		h.hasPriority = true
		h.depStream = MaskStreamID(BytesToUint32(payload[0:4]))
		h.weight = payload[4]
		payload = payload[5:]
	}
	h.rawHeaders = append(h.rawHeaders[:0], payload...)
	return nil
}

func (h *Headers) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if h.endStream {
		flags |= FlagEndStream
	}
	if h.endHeaders {
		flags |= FlagEndHeaders
	}
	payload := make([]byte, 0, 5+len(h.rawHeaders))
	if h.hasPriority {
		flags |= FlagPriority
		payload = AppendUint32(payload, h.depStream)
		payload = append(payload, h.weight)
	}
	payload = append(payload, h.rawHeaders...)
	if h.hasPadding {
		flags |= FlagPadded
		payload = addPadding(payload)
	}
	fh.SetFlags(flags)
	fh.SetPayload(payload)
}
