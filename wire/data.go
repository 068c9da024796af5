package wire

import "sync"

// Data carries a DATA frame payload.
type Data struct {
	endStream  bool
	hasPadding bool
	b          []byte
}

var dataPool = sync.Pool{New: func() interface{} { return &Data{} }}

func AcquireData() *Data { return dataPool.Get().(*Data) }

func ReleaseData(d *Data) {
	d.Reset()
	dataPool.Put(d)
}

func (d *Data) Type() FrameType { return FrameData }

func (d *Data) Reset() {
	d.endStream = false
	d.hasPadding = false
	d.b = d.b[:0]
}

func (d *Data) CopyTo(dst *Data) {
	dst.endStream = d.endStream
	dst.hasPadding = d.hasPadding
	dst.b = append(dst.b[:0], d.b...)
}

func (d *Data) EndStream() bool     { return d.endStream }
func (d *Data) SetEndStream(v bool) { d.endStream = v }
func (d *Data) Padding() bool       { return d.hasPadding }
func (d *Data) SetPadding(v bool)   { d.hasPadding = v }
func (d *Data) Data() []byte        { return d.b }
func (d *Data) SetData(b []byte)    { d.b = append(d.b[:0], b...) }
func (d *Data) Append(b []byte)     { d.b = append(d.b, b...) }
func (d *Data) Len() int            { return len(d.b) }

func (d *Data) Write(p []byte) (int, error) {
	d.b = append(d.b, p...)
	return len(p), nil
}

func (d *Data) Deserialize(fh *FrameHeader) error {
	d.endStream = fh.Flags().Has(FlagEndStream)
	payload := fh.Payload()
	if fh.Flags().Has(FlagPadded) {
		d.hasPadding = true
		payload = cutPadding(payload)
	}
	d.b = append(d.b[:0], payload...)
	return nil
}

func (d *Data) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if d.endStream {
		flags |= FlagEndStream
	}
	payload := d.b
	if d.hasPadding {
		flags |= FlagPadded
		payload = addPadding(payload)
	}
	fh.SetFlags(flags)
	fh.SetPayload(payload)
}
