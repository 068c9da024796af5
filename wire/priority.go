package wire

import "sync"

// Priority carries a PRIORITY frame. The transport records it but treats
// the priority tree as inert: no scheduling decision is ever made from it.
type Priority struct {
	stream uint32
	weight uint8
}

var priorityPool = sync.Pool{New: func() interface{} { return &Priority{} }}

func AcquirePriority() *Priority { return priorityPool.Get().(*Priority) }

func ReleasePriority(p *Priority) {
	p.Reset()
	priorityPool.Put(p)
}

func (p *Priority) Type() FrameType { return FramePriority }

func (p *Priority) Reset() {
	p.stream = 0
	p.weight = 0
}

func (p *Priority) Stream() uint32      { return p.stream }
func (p *Priority) SetStream(id uint32) { p.stream = MaskStreamID(id) }
func (p *Priority) Weight() uint8       { return p.weight }
func (p *Priority) SetWeight(w uint8)   { p.weight = w }

func (p *Priority) Deserialize(fh *FrameHeader) error {
	b := fh.Payload()
	if len(b) < 5 {
		return ErrShortFrame
	}
	p.stream = MaskStreamID(BytesToUint32(b[0:4]))
	p.weight = b[4]
	return nil
}

func (p *Priority) Serialize(fh *FrameHeader) {
	b := make([]byte, 5)
	Uint32ToBytes(b[0:4], p.stream)
	b[4] = p.weight
	fh.SetPayload(b)
}
