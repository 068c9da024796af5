package wire

import (
	"context"
	"testing"
	"time"

	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

func TestStreamHappyPathClientSequence(t *testing.T) {
	s := NewStream(1, DefaultInitialWindowSize, nil)

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Send(context.Background(), h); err != nil {
		t.Fatalf("send headers: %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %s, want Open", s.State())
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetEndStream(true)
	if err := s.Send(context.Background(), d); err != nil {
		t.Fatalf("send data end: %v", err)
	}
	if s.State() != StateHalfClosedLocal {
		t.Fatalf("state = %s, want HalfClosedLocal", s.State())
	}

	dec := hpack.NewDecoder(4096)
	rh := AcquireHeaders()
	defer ReleaseHeaders(rh)
	rh.SetEndStream(true)
	if err := s.Receive(rh, dec); err != nil {
		t.Fatalf("receive headers end: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want Closed", s.State())
	}
	select {
	case <-s.Closed():
	default:
		t.Fatal("expected Closed() channel to be closed")
	}
}

func TestStreamIllegalDataBeforeHeaders(t *testing.T) {
	s := NewStream(1, DefaultInitialWindowSize, nil)
	d := AcquireData()
	defer ReleaseData(d)
	if err := s.Send(context.Background(), d); err != ErrStreamClosed {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
}

func TestStreamSendAfterClosedIsIllegal(t *testing.T) {
	s := NewStream(1, DefaultInitialWindowSize, nil)
	rst := AcquireRstStream()
	defer ReleaseRstStream(rst)
	if err := s.Send(context.Background(), rst); err != nil {
		t.Fatalf("send rst: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want Closed", s.State())
	}

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Send(context.Background(), h); err != ErrStreamClosed {
		t.Fatalf("err = %v, want ErrStreamClosed after close", err)
	}
}

func TestStreamSendBlocksOnWindowThenUnblocksOnWindowUpdate(t *testing.T) {
	s := NewStream(1, 4, nil) // tiny window: 4 bytes of credit
	dec := hpack.NewDecoder(4096)

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Send(context.Background(), h); err != nil {
		t.Fatalf("send headers: %v", err)
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetData([]byte("12345678")) // 8 bytes, exceeds the 4-byte window

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), d)
	}()

	select {
	case <-done:
		t.Fatal("Send returned before credit was available")
	case <-time.After(30 * time.Millisecond):
	}

	wu := AcquireWindowUpdate()
	defer ReleaseWindowUpdate(wu)
	wu.SetIncrement(100)
	if err := s.Receive(wu, dec); err != nil {
		t.Fatalf("receive window update: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send() = %v, want nil once credit arrived", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after WINDOW_UPDATE")
	}
}

func TestStreamSendCancelledByContext(t *testing.T) {
	s := NewStream(1, 0, nil)
	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Send(context.Background(), h); err != nil {
		t.Fatalf("send headers: %v", err)
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetData([]byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Send(ctx, d)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after context cancellation")
	}
}

func TestStreamConnWindowAlsoGatesSend(t *testing.T) {
	s := NewStream(1, 100, nil)
	conn := NewStream(0, 2, nil) // connection-wide window smaller than the stream's own
	s.SetConnWindow(conn)
	dec := hpack.NewDecoder(4096)

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Send(context.Background(), h); err != nil {
		t.Fatalf("send headers: %v", err)
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetData([]byte("1234")) // 4 bytes: fits the stream window, not the conn window

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), d)
	}()

	select {
	case <-done:
		t.Fatal("Send returned before the connection window had credit")
	case <-time.After(30 * time.Millisecond):
	}

	wu := AcquireWindowUpdate()
	defer ReleaseWindowUpdate(wu)
	wu.SetIncrement(100)
	if err := conn.Receive(wu, dec); err != nil {
		t.Fatalf("receive conn window update: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send() = %v, want nil once the conn window opened", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after the connection WINDOW_UPDATE")
	}
}

// Feeding a stream 40000 bytes of DATA against a 65535-byte initial
// window must produce exactly one outbound WINDOW_UPDATE with an
// increment >= 40000, because 65535-40000 = 25535 < 65535/2.
func TestStreamInboundReplenishmentOnLargeDataTransfer(t *testing.T) {
	out := make(chan *FrameHeader, 8)
	s := NewStream(1, DefaultInitialWindowSize, out)
	dec := hpack.NewDecoder(4096)

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Receive(h, dec); err != nil {
		t.Fatalf("receive headers: %v", err)
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetData(make([]byte, 40000))
	if err := s.Receive(d, dec); err != nil {
		t.Fatalf("receive data: %v", err)
	}

	select {
	case fh := <-out:
		wu, ok := fh.Body().(*WindowUpdate)
		if !ok {
			t.Fatalf("enqueued frame = %T, want *WindowUpdate", fh.Body())
		}
		if wu.Increment() < 40000 {
			t.Fatalf("increment = %d, want >= 40000", wu.Increment())
		}
		if fh.Stream() != s.ID() {
			t.Fatalf("WINDOW_UPDATE stream = %d, want %d (stream-scoped)", fh.Stream(), s.ID())
		}
	default:
		t.Fatal("expected a WINDOW_UPDATE to be enqueued")
	}

	select {
	case extra := <-out:
		t.Fatalf("unexpected second frame enqueued: %+v", extra)
	default:
	}
}

// A DATA frame on a stream linked to a connection-wide pseudo-stream
// decrements and replenishes both windows independently.
func TestStreamInboundReplenishmentAppliesAtConnectionScopeToo(t *testing.T) {
	connOut := make(chan *FrameHeader, 8)
	conn := NewStream(0, DefaultInitialWindowSize, connOut)

	streamOut := make(chan *FrameHeader, 8)
	s := NewStream(1, DefaultInitialWindowSize, streamOut)
	s.SetConnWindow(conn)
	dec := hpack.NewDecoder(4096)

	h := AcquireHeaders()
	defer ReleaseHeaders(h)
	if err := s.Receive(h, dec); err != nil {
		t.Fatalf("receive headers: %v", err)
	}

	d := AcquireData()
	defer ReleaseData(d)
	d.SetData(make([]byte, 40000))
	if err := s.Receive(d, dec); err != nil {
		t.Fatalf("receive data: %v", err)
	}

	select {
	case fh := <-streamOut:
		if fh.Stream() != 1 {
			t.Fatalf("stream-scope WINDOW_UPDATE stream = %d, want 1", fh.Stream())
		}
	default:
		t.Fatal("expected a stream-scoped WINDOW_UPDATE")
	}

	select {
	case fh := <-connOut:
		if fh.Stream() != 0 {
			t.Fatalf("connection-scope WINDOW_UPDATE stream = %d, want 0", fh.Stream())
		}
	default:
		t.Fatal("expected a connection-scoped WINDOW_UPDATE on stream 0")
	}
}
