package wire

import "sync"

// RstStream carries a RST_STREAM frame, forcing the target stream to
// Closed regardless of its prior state.
type RstStream struct {
	code ErrorCode
}

var rstStreamPool = sync.Pool{New: func() interface{} { return &RstStream{} }}

func AcquireRstStream() *RstStream { return rstStreamPool.Get().(*RstStream) }

func ReleaseRstStream(r *RstStream) {
	r.Reset()
	rstStreamPool.Put(r)
}

func (r *RstStream) Type() FrameType     { return FrameRstStream }
func (r *RstStream) Reset()              { r.code = NoError }
func (r *RstStream) Code() ErrorCode     { return r.code }
func (r *RstStream) SetCode(c ErrorCode) { r.code = c }

func (r *RstStream) Deserialize(fh *FrameHeader) error {
	b := fh.Payload()
	if len(b) < 4 {
		return ErrShortFrame
	}
	r.code = ErrorCode(BytesToUint32(b[0:4]))
	return nil
}

func (r *RstStream) Serialize(fh *FrameHeader) {
	b := make([]byte, 4)
	Uint32ToBytes(b, uint32(r.code))
	fh.SetPayload(b)
}
