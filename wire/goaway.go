package wire

import (
	"fmt"
	"sync"
)

// GoAway carries a GOAWAY frame: the last stream id the sender will
// process, an error code, and optional opaque debug data.
type GoAway struct {
	lastStream uint32
	code       ErrorCode
	data       []byte
}

var goAwayPool = sync.Pool{New: func() interface{} { return &GoAway{} }}

func AcquireGoAway() *GoAway { return goAwayPool.Get().(*GoAway) }

func ReleaseGoAway(g *GoAway) {
	g.Reset()
	goAwayPool.Put(g)
}

func (g *GoAway) Type() FrameType { return FrameGoAway }

func (g *GoAway) Reset() {
	g.lastStream = 0
	g.code = NoError
	g.data = g.data[:0]
}

func (g *GoAway) Error() string {
	return fmt.Sprintf("goaway: lastStream=%d code=%s data=%q", g.lastStream, g.code, g.data)
}

func (g *GoAway) LastStream() uint32      { return g.lastStream }
func (g *GoAway) SetLastStream(id uint32) { g.lastStream = MaskStreamID(id) }
func (g *GoAway) Code() ErrorCode         { return g.code }
func (g *GoAway) SetCode(c ErrorCode)     { g.code = c }
func (g *GoAway) Data() []byte            { return g.data }
func (g *GoAway) SetData(b []byte)        { g.data = append(g.data[:0], b...) }

func (g *GoAway) Deserialize(fh *FrameHeader) error {
	b := fh.Payload()
	if len(b) < 8 {
		return ErrShortFrame
	}
	g.lastStream = MaskStreamID(BytesToUint32(b[0:4]))
	g.code = ErrorCode(BytesToUint32(b[4:8]))
	g.data = append(g.data[:0], b[8:]...)
	return nil
}

func (g *GoAway) Serialize(fh *FrameHeader) {
	payload := make([]byte, 8, 8+len(g.data))
	Uint32ToBytes(payload[0:4], g.lastStream)
	Uint32ToBytes(payload[4:8], uint32(g.code))
	payload = append(payload, g.data...)
	fh.SetPayload(payload)
}
