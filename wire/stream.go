package wire

import (
	"context"
	"sync"

	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

// StreamState is one of the seven states of the stream lifecycle machine.
// It is modeled as a sum type (not a set of booleans) so illegal
// transitions are a single switch away from being caught.
type StreamState int8

const (
	StateIdle StreamState = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateReservedLocal:
		return "ReservedLocal"
	case StateReservedRemote:
		return "ReservedRemote"
	case StateOpen:
		return "Open"
	case StateHalfClosedLocal:
		return "HalfClosedLocal"
	case StateHalfClosedRemote:
		return "HalfClosedRemote"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// streamEvent enumerates the HEADERS/DATA send/receive events that drive
// transitions.
type streamEvent int8

const (
	eventSendHeaders streamEvent = iota
	eventSendHeadersEnd
	eventSendData
	eventSendDataEnd
	eventRecvHeaders
	eventRecvHeadersEnd
	eventRecvData
	eventRecvDataEnd
)

// ErrStreamClosed is returned when a frame is sent or received against a
// stream that is not in a state the event permits.
var ErrStreamClosed = NewResetStreamError(0, StreamClosedError, "stream state violation")

// nextState computes the post-event state, or an error if the event is
// illegal in the current state. An event that is permitted but implies no
// transition returns cur unchanged.
func nextState(cur StreamState, ev streamEvent) (StreamState, error) {
	if cur == StateClosed {
		return cur, ErrStreamClosed
	}
	switch ev {
	case eventSendHeaders, eventRecvHeaders:
		if cur == StateIdle {
			return StateOpen, nil
		}
		return cur, nil
	case eventSendHeadersEnd:
		switch cur {
		case StateIdle, StateOpen:
			return StateHalfClosedLocal, nil
		case StateHalfClosedLocal, StateHalfClosedRemote:
			return StateClosed, nil
		}
	case eventRecvHeadersEnd:
		switch cur {
		case StateIdle, StateOpen:
			return StateHalfClosedRemote, nil
		case StateHalfClosedLocal, StateHalfClosedRemote:
			return StateClosed, nil
		}
	case eventSendData, eventRecvData:
		if cur == StateIdle {
			return cur, ErrStreamClosed
		}
		return cur, nil
	case eventSendDataEnd:
		switch cur {
		case StateIdle:
			return cur, ErrStreamClosed
		case StateOpen:
			return StateHalfClosedLocal, nil
		case StateHalfClosedLocal, StateHalfClosedRemote:
			return StateClosed, nil
		}
	case eventRecvDataEnd:
		switch cur {
		case StateIdle:
			return cur, ErrStreamClosed
		case StateOpen:
			return StateHalfClosedRemote, nil
		case StateHalfClosedLocal, StateHalfClosedRemote:
			return StateClosed, nil
		}
	}
	return cur, nil
}

// Stream is the per-logical-call state: merged received headers, the
// received-data buffer, flow-control windows and the
// 7-state lifecycle. Stream id 0 is the connection-wide pseudo-stream used
// for window bookkeeping and for answering PING and SETTINGS; it never
// transitions out of Idle.
type Stream struct {
	mu sync.Mutex

	id    uint32
	state StreamState

	headers hpack.List
	data    []byte

	sendWindow    int64
	recvWindow    int64
	initialWindow uint32
	sendReady     chan struct{}

	// conn is the connection-wide pseudo-stream whose own sendWindow must
	// also have credit before a DATA frame may be sent on this stream (nil
	// for the pseudo-stream itself, and for streams not linked to a
	// Connection). See reserveSendWindow.
	conn *Stream

	pushEnabled bool

	out      chan<- *FrameHeader
	closedCh chan struct{}
}

// NewStream constructs a Stream with the given initial window, ready to
// enqueue replies (PING acks, SETTINGS acks, WINDOW_UPDATE) on out.
func NewStream(id uint32, initialWindow uint32, out chan<- *FrameHeader) *Stream {
	return &Stream{
		id:            id,
		state:         StateIdle,
		sendWindow:    int64(initialWindow),
		recvWindow:    int64(initialWindow),
		initialWindow: initialWindow,
		sendReady:     make(chan struct{}),
		pushEnabled:   true,
		out:           out,
		closedCh:      make(chan struct{}),
	}
}

// SetConnWindow links s to the connection-wide pseudo-stream whose send
// window gates s's own DATA sends alongside s's per-stream window.
func (s *Stream) SetConnWindow(conn *Stream) { s.conn = conn }

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Headers returns the stream's merged received header list.
func (s *Stream) Headers() *hpack.List { return &s.headers }

// Data returns the stream's received-data buffer (lazily grown on first DATA).
func (s *Stream) Data() []byte { return s.data }

// SendWindow returns the remaining outbound send credit.
func (s *Stream) SendWindow() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendWindow
}

// Closed returns a channel that is closed exactly once the stream
// transitions to StateClosed, the completion signal the client's Send
// blocks on instead of polling.
func (s *Stream) Closed() <-chan struct{} { return s.closedCh }

func (s *Stream) setState(next StreamState) {
	s.state = next
	if next == StateClosed {
		select {
		case <-s.closedCh:
		default:
			close(s.closedCh)
		}
	}
}

// Send applies the given frame's effect on local send state, returning an
// error if the transition it implies is illegal. HEADERS and DATA drive
// the state machine and RST_STREAM forces the stream to Closed; every
// other frame type passes through untouched. A DATA
// frame additionally blocks, cancellable via ctx, until both this stream's
// and the connection's send windows can cover its length, consuming that
// credit before the state transition is applied.
func (s *Stream) Send(ctx context.Context, fr Frame) error {
	if d, ok := fr.(*Data); ok {
		if err := s.reserveSendWindow(ctx, int64(d.Len())); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch f := fr.(type) {
	case *Headers:
		ev := eventSendHeaders
		if f.EndStream() {
			ev = eventSendHeadersEnd
		}
		next, err := nextState(s.state, ev)
		if err != nil {
			return err
		}
		s.setState(next)
	case *Data:
		ev := eventSendData
		if f.EndStream() {
			ev = eventSendDataEnd
		}
		next, err := nextState(s.state, ev)
		if err != nil {
			return err
		}
		s.setState(next)
	case *RstStream:
		s.setState(StateClosed)
	}
	return nil
}

// reserveSendWindow blocks until n bytes of send credit are available on
// both s and (if linked) the connection-wide pseudo-stream, then consumes
// that credit atomically across both. It wakes whenever a WINDOW_UPDATE
// widens either window (signalSendReady), or returns ctx.Err() if ctx is
// done first.
func (s *Stream) reserveSendWindow(ctx context.Context, n int64) error {
	if n == 0 {
		return nil
	}
	for {
		s.mu.Lock()
		streamReady := s.sendWindow >= n
		streamWait := s.sendReady

		var connReady = true
		var connWait chan struct{}
		if s.conn != nil {
			s.conn.mu.Lock()
			connReady = s.conn.sendWindow >= n
			connWait = s.conn.sendReady
		}

		if streamReady && connReady {
			s.sendWindow -= n
			if s.conn != nil {
				s.conn.sendWindow -= n
				s.conn.mu.Unlock()
			}
			s.mu.Unlock()
			return nil
		}
		if s.conn != nil {
			s.conn.mu.Unlock()
		}
		s.mu.Unlock()

		select {
		case <-streamWait:
		case <-connWait: // nil when s.conn == nil: this case never fires
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signalSendReady wakes every reserveSendWindow call blocked on s's window,
// called with s.mu held.
func (s *Stream) signalSendReady() {
	close(s.sendReady)
	s.sendReady = make(chan struct{})
}

// Receive applies an inbound frame to the stream: it decodes header
// blocks through dec, accumulates DATA into the buffer, updates flow
// control, drives the state machine, and answers PING/SETTINGS/
// WINDOW_UPDATE. Id-0 control frames (SETTINGS, PING,
// connection WINDOW_UPDATE) are expected to arrive on the connection's
// pseudo-stream.
func (s *Stream) Receive(fr Frame, dec *hpack.Decoder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch f := fr.(type) {
	case *Headers:
		if err := dec.Decode(&s.headers, f.RawHeaders()); err != nil {
			return NewGoAwayError(CompressionError, err.Error())
		}
		ev := eventRecvHeaders
		if f.EndStream() {
			ev = eventRecvHeadersEnd
		}
		next, err := nextState(s.state, ev)
		if err != nil {
			return err
		}
		s.setState(next)

	case *Continuation:
		if err := dec.Decode(&s.headers, f.RawHeaders()); err != nil {
			return NewGoAwayError(CompressionError, err.Error())
		}

	case *Data:
		ev := eventRecvData
		if f.EndStream() {
			ev = eventRecvDataEnd
		}
		next, err := nextState(s.state, ev)
		if err != nil {
			return err
		}
		s.setState(next)
		if s.data == nil {
			s.data = make([]byte, 0, f.Len())
		}
		s.data = append(s.data, f.Data()...)
		s.replenish(int64(f.Len()))
		if s.conn != nil {
			s.conn.mu.Lock()
			s.conn.replenish(int64(f.Len()))
			s.conn.mu.Unlock()
		}

	case *RstStream:
		s.setState(StateClosed)

	case *Ping:
		if !f.Ack() {
			reply := AcquireFrameHeader()
			reply.SetStream(0)
			reply.SetBody(f.ReplyAck())
			s.enqueue(reply)
		}

	case *SettingsFrame:
		if !f.Ack() {
			vals := f.Values()
			if vals.InitialWindowSize != 0 {
				s.initialWindow = vals.InitialWindowSize
			}
			s.pushEnabled = vals.EnablePush
			reply := AcquireFrameHeader()
			reply.SetStream(0)
			ack := AcquireSettingsFrame()
			ack.SetAck(true)
			reply.SetBody(ack)
			s.enqueue(reply)
		}

	case *WindowUpdate:
		s.sendWindow += int64(f.Increment())
		s.signalSendReady()

	// PRIORITY, PUSH_PROMISE, GOAWAY are tolerated no-ops at the stream
	// level; the connection handles GOAWAY at the socket scope.
	case *Priority, *PushPromise, *GoAway:
	}
	return nil
}

// replenish decrements the inbound window by n and, if it has dropped
// below half the initial window, emits a WINDOW_UPDATE restoring it to
// initial.
func (s *Stream) replenish(n int64) {
	s.recvWindow -= n
	if s.recvWindow >= int64(s.initialWindow)/2 {
		return
	}
	increment := int64(s.initialWindow) - s.recvWindow
	s.recvWindow = int64(s.initialWindow)

	reply := AcquireFrameHeader()
	reply.SetStream(s.id)
	wu := AcquireWindowUpdate()
	wu.SetIncrement(uint32(increment))
	reply.SetBody(wu)
	s.enqueue(reply)
}

func (s *Stream) enqueue(fh *FrameHeader) {
	if s.out == nil {
		ReleaseFrameHeader(fh)
		return
	}
	s.out <- fh
}
