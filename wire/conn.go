package wire

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

// ConnState is the connection-wide lifecycle: New while serving frames,
// Closed once the socket has been torn down.
type ConnState int32

const (
	ConnNew ConnState = iota
	ConnClosed
)

// connAdvertisedMaxFrameSize is the MaxFrameSize both handshakes announce;
// the read loop accepts payloads up to the same ceiling.
const connAdvertisedMaxFrameSize = 4 * 1024 * 1024

// FrameCallback is invoked once per successfully dispatched frame, after
// the target Stream has applied it. The caller (typically the server
// dispatcher) uses it to notice a stream's transition to HalfClosedRemote
// and spawn a response task.
type FrameCallback func(s *Stream, fh *FrameHeader)

// Connection is one per underlying byte pipe: it owns the shared
// header-compression codec pair, the stream table, and serializes writes
// behind a single mutex/channel while a dedicated goroutine runs the
// blocking read loop.
type Connection struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	writeMu sync.Mutex
	encMu   sync.Mutex

	enc *hpack.Encoder
	dec *hpack.Decoder

	streams *StreamTable
	control *Stream // the stream-id-0 connection-wide pseudo-stream

	initialWindow uint32
	maxFrameSize  uint32

	nextClientStreamID uint32 // atomic; client-side only
	lastStreamSeen     uint32 // atomic; highest stream id dispatched or opened locally

	state   int32 // atomic ConnState
	writeCh chan *FrameHeader

	onFrame FrameCallback
}

// NewConnection wraps c, constructing fresh (never shared) codec instances
// and an empty stream table.
func NewConnection(c net.Conn) *Connection {
	conn := &Connection{
		c:                  c,
		br:                 bufio.NewReaderSize(c, 4096),
		bw:                 bufio.NewWriterSize(c, defaultMaxFrameLen),
		enc:                hpack.NewEncoder(int(DefaultHeaderTableSize)),
		dec:                hpack.NewDecoder(int(DefaultHeaderTableSize)),
		streams:            NewStreamTable(),
		initialWindow:      DefaultInitialWindowSize,
		maxFrameSize:       connAdvertisedMaxFrameSize,
		nextClientStreamID: 1,
		writeCh:            make(chan *FrameHeader, 128),
	}
	conn.control = NewStream(0, conn.initialWindow, conn.writeCh)
	conn.streams.m = map[uint32]*Stream{0: conn.control}
	return conn
}

// State reports the connection's lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(atomic.LoadInt32(&c.state))
}

func (c *Connection) markClosed() {
	atomic.StoreInt32(&c.state, int32(ConnClosed))
}

// NextStreamID allocates the next odd client-initiated stream id via a
// single atomic fetch-and-add, starting at 1 and incrementing by 2.
func (c *Connection) NextStreamID() uint32 {
	return atomic.AddUint32(&c.nextClientStreamID, 2) - 2
}

// Streams exposes the connection's stream table.
func (c *Connection) Streams() *StreamTable { return c.streams }

// Encoder exposes the outbound header-compression codec. Callers that
// encode concurrently from multiple goroutines (one per in-flight stream)
// must go through EncodeHeaders instead, since the dynamic table's insertion
// order has to match the order frames actually reach the wire.
func (c *Connection) Encoder() *hpack.Encoder { return c.enc }

// EncodeHeaders serializes list under the connection's encode lock,
// keeping the dynamic table's insertion order consistent across concurrent
// callers. The lock spans only the encode, not the subsequent socket
// write.
func (c *Connection) EncodeHeaders(list *hpack.List) []byte {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	return c.enc.Encode(nil, list)
}

// SetOnFrame installs the per-frame callback invoked from the read loop.
func (c *Connection) SetOnFrame(cb FrameCallback) { c.onFrame = cb }

// streamFor returns the existing stream for id, creating one (seeded with
// the connection's initial window and linked to the connection-wide send
// window) if this is the first frame to reference it.
func (c *Connection) streamFor(id uint32) *Stream {
	if id == 0 {
		return c.control
	}
	s := c.streams.GetOrCreate(id, func() *Stream {
		s := NewStream(id, c.initialWindow, c.writeCh)
		s.SetConnWindow(c.control)
		return s
	})
	for {
		cur := atomic.LoadUint32(&c.lastStreamSeen)
		if id <= cur || atomic.CompareAndSwapUint32(&c.lastStreamSeen, cur, id) {
			break
		}
	}
	return s
}

// LastStreamSeen returns the highest stream id the connection has dispatched
// a frame for or opened via OpenStream, for use in a graceful-shutdown
// GOAWAY's last-stream-id field.
func (c *Connection) LastStreamSeen() uint32 {
	return atomic.LoadUint32(&c.lastStreamSeen)
}

// GoAwayGraceful sends a GOAWAY naming the highest stream id seen so far
// (rather than 0, as the unconditional Close does) without tearing down the
// socket, so in-flight streams at or below that id may still complete.
func (c *Connection) GoAwayGraceful(code ErrorCode) error {
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	ga := AcquireGoAway()
	ga.SetLastStream(c.LastStreamSeen())
	ga.SetCode(code)
	fh.SetBody(ga)
	return c.WriteFrame(fh)
}

// OpenStream returns the stream for id, creating and registering it if
// necessary. Callers that originate a stream locally (the client issuing a
// new request) use this instead of constructing a bare Stream, so that
// outbound replies and flow control land on the connection's own plumbing.
func (c *Connection) OpenStream(id uint32) *Stream {
	return c.streamFor(id)
}

// WriteFrame serializes fh and writes it to the underlying socket,
// serialized by the write mutex, because multiple stream operations may
// emit concurrently.
func (c *Connection) WriteFrame(fh *FrameHeader) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	defer ReleaseFrameHeader(fh)

	if _, err := fh.WriteTo(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}

// writerLoop drains writeCh (control replies produced from inside
// Stream.Receive) onto the socket until the channel is closed.
func (c *Connection) writerLoop() {
	for fh := range c.writeCh {
		if err := c.WriteFrame(fh); err != nil {
			return
		}
	}
}

// ServerStart performs the server-side handshake: verify the 24-byte
// preface, write the server's own initial SETTINGS as its first frame,
// then enter the read loop. A preface mismatch closes the
// connection immediately with no response.
func (c *Connection) ServerStart() error {
	if err := ReadPreface(c.br); err != nil {
		_ = c.c.Close()
		c.markClosed()
		return err
	}

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	st := AcquireSettingsFrame()
	vals := st.Values()
	vals.EnablePush = false
	vals.MaxFrameSize = connAdvertisedMaxFrameSize
	vals.MaxHeaderListSize = connAdvertisedMaxFrameSize
	fh.SetBody(st)
	if err := c.WriteFrame(fh); err != nil {
		_ = c.c.Close()
		c.markClosed()
		return err
	}

	go c.writerLoop()
	return c.readLoop()
}

// ClientStart performs the client-side handshake: write the preface and an
// initial SETTINGS frame (EnablePush=0, MaxFrameSize/MaxHeaderListSize =
// 4 MiB), then enter the read loop.
func (c *Connection) ClientStart() error {
	if err := WritePreface(c.bw); err != nil {
		_ = c.c.Close()
		c.markClosed()
		return err
	}

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	st := AcquireSettingsFrame()
	vals := st.Values()
	vals.EnablePush = false
	vals.MaxFrameSize = connAdvertisedMaxFrameSize
	vals.MaxHeaderListSize = connAdvertisedMaxFrameSize
	fh.SetBody(st)
	if err := c.WriteFrame(fh); err != nil {
		_ = c.c.Close()
		c.markClosed()
		return err
	}

	go c.writerLoop()
	return c.readLoop()
}

// readLoop is the single-reader dispatch loop shared by client and server:
// read a frame, locate or create its stream, apply it, invoke
// the caller's callback, and evict the stream once Closed. EOF terminates
// the loop normally.
func (c *Connection) readLoop() error {
	defer func() {
		close(c.writeCh)
		_ = c.c.Close()
		c.markClosed()
	}()

	for {
		fh, err := ReadFrameFromWithSize(c.br, c.maxFrameSize)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		s := c.streamFor(fh.Stream())
		if err := s.Receive(fh.Body(), c.dec); err != nil {
			if IsConnectionFatal(err) {
				ReleaseFrameHeader(fh)
				return err
			}
			// Stream-fatal: reply with RST_STREAM, drop the stream, keep serving.
			c.resetStream(fh.Stream(), err)
			ReleaseFrameHeader(fh)
			c.streams.Delete(fh.Stream())
			continue
		}

		if set, ok := fh.Body().(*SettingsFrame); ok && fh.Stream() == 0 && !set.Ack() {
			// Only a HeaderTableSize actually present on the wire can shrink
			// our encoder's dynamic table; an absent field must never be
			// treated as an explicit 0.
			if set.Values().HasHeaderTableSize() {
				if newMax := int(set.Values().HeaderTableSize); newMax < c.enc.MaxTableSize() {
					c.enc.SetMaxTableSize(newMax)
				}
			}
			if set.Values().HasInitialWindowSize() {
				c.initialWindow = set.Values().InitialWindowSize
			}
		}

		if c.onFrame != nil {
			c.onFrame(s, fh)
		}

		if fh.Stream() != 0 && s.State() == StateClosed {
			c.streams.Delete(fh.Stream())
		}

		ReleaseFrameHeader(fh)
	}
}

func (c *Connection) resetStream(id uint32, cause error) {
	code := ProtocolError
	if e, ok := cause.(*Error); ok {
		code = e.Code
	}
	fh := AcquireFrameHeader()
	fh.SetStream(id)
	rst := AcquireRstStream()
	rst.SetCode(code)
	fh.SetBody(rst)
	select {
	case c.writeCh <- fh:
	default:
		ReleaseFrameHeader(fh)
	}
}

// Close sends a GOAWAY(NoError) and tears down the underlying socket.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.state, int32(ConnNew), int32(ConnClosed)) {
		return nil
	}
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	ga := AcquireGoAway()
	ga.SetCode(NoError)
	fh.SetBody(ga)
	_ = c.WriteFrame(fh)
	return c.c.Close()
}
