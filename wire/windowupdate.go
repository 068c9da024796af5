package wire

import "sync"

// WindowUpdate carries a WINDOW_UPDATE frame's 31-bit increment.
type WindowUpdate struct {
	increment uint32
}

var windowUpdatePool = sync.Pool{New: func() interface{} { return &WindowUpdate{} }}

func AcquireWindowUpdate() *WindowUpdate { return windowUpdatePool.Get().(*WindowUpdate) }

func ReleaseWindowUpdate(w *WindowUpdate) {
	w.Reset()
	windowUpdatePool.Put(w)
}

func (w *WindowUpdate) Type() FrameType       { return FrameWindowUpdate }
func (w *WindowUpdate) Reset()                { w.increment = 0 }
func (w *WindowUpdate) Increment() uint32     { return w.increment }
func (w *WindowUpdate) SetIncrement(n uint32) { w.increment = n }

func (w *WindowUpdate) Deserialize(fh *FrameHeader) error {
	b := fh.Payload()
	if len(b) < 4 {
		return ErrShortFrame
	}
	w.increment = MaskStreamID(BytesToUint32(b[0:4]))
	return nil
}

func (w *WindowUpdate) Serialize(fh *FrameHeader) {
	b := make([]byte, 4)
	Uint32ToBytes(b, w.increment)
	fh.SetPayload(b)
}
