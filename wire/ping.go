package wire

import "sync"

// Ping carries an 8-byte opaque PING payload.
type Ping struct {
	ack  bool
	data [8]byte
}

var pingPool = sync.Pool{New: func() interface{} { return &Ping{} }}

func AcquirePing() *Ping { return pingPool.Get().(*Ping) }

func ReleasePing(p *Ping) {
	p.Reset()
	pingPool.Put(p)
}

func (p *Ping) Type() FrameType { return FramePing }

func (p *Ping) Reset() {
	p.ack = false
	p.data = [8]byte{}
}

func (p *Ping) Ack() bool         { return p.ack }
func (p *Ping) SetAck(v bool)     { p.ack = v }
func (p *Ping) Data() [8]byte     { return p.data }
func (p *Ping) SetData(b [8]byte) { p.data = b }

// ReplyAck returns the ACK PING to send back in response to a non-ACK
// PING, carrying the same opaque data.
func (p *Ping) ReplyAck() *Ping {
	reply := AcquirePing()
	reply.data = p.data
	reply.ack = true
	return reply
}

func (p *Ping) Deserialize(fh *FrameHeader) error {
	p.ack = fh.Flags().Has(FlagAck)
	b := fh.Payload()
	if len(b) < 8 {
		return ErrShortFrame
	}
	copy(p.data[:], b[:8])
	return nil
}

func (p *Ping) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if p.ack {
		flags |= FlagAck
	}
	fh.SetFlags(flags)
	fh.SetPayload(p.data[:])
}
