package wire

import "sync"

// Continuation carries the overflow of a header block that did not fit in
// a single HEADERS (or PUSH_PROMISE) frame.
type Continuation struct {
	endHeaders bool
	rawHeaders []byte
}

var continuationPool = sync.Pool{New: func() interface{} { return &Continuation{} }}

func AcquireContinuation() *Continuation { return continuationPool.Get().(*Continuation) }

func ReleaseContinuation(c *Continuation) {
	c.Reset()
	continuationPool.Put(c)
}

func (c *Continuation) Type() FrameType { return FrameContinuation }

func (c *Continuation) Reset() {
	c.endHeaders = false
	c.rawHeaders = c.rawHeaders[:0]
}

func (c *Continuation) RawHeaders() []byte     { return c.rawHeaders }
func (c *Continuation) SetRawHeaders(b []byte) { c.rawHeaders = append(c.rawHeaders[:0], b...) }
func (c *Continuation) EndHeaders() bool       { return c.endHeaders }
func (c *Continuation) SetEndHeaders(v bool)   { c.endHeaders = v }

func (c *Continuation) Deserialize(fh *FrameHeader) error {
	c.endHeaders = fh.Flags().Has(FlagEndHeaders)
	c.rawHeaders = append(c.rawHeaders[:0], fh.Payload()...)
	return nil
}

func (c *Continuation) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if c.endHeaders {
		flags |= FlagEndHeaders
	}
	fh.SetFlags(flags)
	fh.SetPayload(c.rawHeaders)
}
