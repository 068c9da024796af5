package wire

import "sync"

// PushPromise carries a PUSH_PROMISE frame. Server push is a declared
// Non-goal; this type exists only so the frame codec can parse and
// tolerate one without the connection treating it as an unknown type.
type PushPromise struct {
	hasPadding bool
	endHeaders bool
	promisedID uint32
	rawHeaders []byte
}

var pushPromisePool = sync.Pool{New: func() interface{} { return &PushPromise{} }}

func AcquirePushPromise() *PushPromise { return pushPromisePool.Get().(*PushPromise) }

func ReleasePushPromise(p *PushPromise) {
	p.Reset()
	pushPromisePool.Put(p)
}

func (p *PushPromise) Type() FrameType { return FramePushPromise }

func (p *PushPromise) Reset() {
	p.hasPadding = false
	p.endHeaders = false
	p.promisedID = 0
	p.rawHeaders = p.rawHeaders[:0]
}

func (p *PushPromise) PromisedStream() uint32 { return p.promisedID }
func (p *PushPromise) EndHeaders() bool       { return p.endHeaders }

func (p *PushPromise) Deserialize(fh *FrameHeader) error {
	p.endHeaders = fh.Flags().Has(FlagEndHeaders)
	payload := fh.Payload()
	if fh.Flags().Has(FlagPadded) {
		p.hasPadding = true
		payload = cutPadding(payload)
	}
	if len(payload) < 4 {
		return ErrShortFrame
	}
	p.promisedID = MaskStreamID(BytesToUint32(payload[0:4]))
	p.rawHeaders = append(p.rawHeaders[:0], payload[4:]...)
	return nil
}

func (p *PushPromise) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if p.endHeaders {
		flags |= FlagEndHeaders
	}
	payload := make([]byte, 4, 4+len(p.rawHeaders))
	Uint32ToBytes(payload, p.promisedID)
	payload = append(payload, p.rawHeaders...)
	fh.SetFlags(flags)
	fh.SetPayload(payload)
}
