package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

func startTestServer(t *testing.T, opts ServerOptions, register func(r *Registry)) (addr string, stop func()) {
	t.Helper()
	_, addr, stop = startTestServerWithHandle(t, opts, register)
	return addr, stop
}

func startTestServerWithHandle(t *testing.T, opts ServerOptions, register func(r *Registry)) (server *Server, addr string, stop func()) {
	t.Helper()
	registry := NewRegistry()
	register(registry)
	server = NewServer(registry, opts)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go server.Serve(c)
		}
	}()

	return server, ln.Addr().String(), func() { ln.Close() }
}

func TestEndToEndUnaryCallHappyPath(t *testing.T) {
	addr, stop := startTestServer(t, ServerOptions{}, func(r *Registry) {
		r.Register("echo", ServiceFunc(func(method string, body []byte) ([]byte, error) {
			if method != "Call" {
				return nil, NewBadStatus(Unimplemented, "unknown method "+method)
			}
			out := append([]byte("echo:"), body...)
			return out, nil
		}))
	})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.SendContext(ctx, "echo", "Call", []byte("hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != OK {
		t.Fatalf("status = %s, want OK (message %q)", resp.Status, resp.Message)
	}
	if string(resp.Body) != "echo:hello" {
		t.Fatalf("body = %q, want %q", resp.Body, "echo:hello")
	}
}

func TestEndToEndUnknownServiceIsNotFound(t *testing.T) {
	addr, stop := startTestServer(t, ServerOptions{}, func(r *Registry) {})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.SendContext(ctx, "nope", "Call", []byte("x"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != NotFound {
		t.Fatalf("status = %s, want NOT_FOUND", resp.Status)
	}
}

func TestEndToEndBadStatusPropagates(t *testing.T) {
	addr, stop := startTestServer(t, ServerOptions{}, func(r *Registry) {
		r.Register("svc", ServiceFunc(func(method string, body []byte) ([]byte, error) {
			return nil, NewBadStatus(InvalidArgument, "bad input")
		}))
	})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.SendContext(ctx, "svc", "Call", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != InvalidArgument {
		t.Fatalf("status = %s, want INVALID_ARGUMENT", resp.Status)
	}
	if resp.Message != "bad input" {
		t.Fatalf("message = %q, want %q", resp.Message, "bad input")
	}
}

func TestEndToEndReusesConnectionAcrossCalls(t *testing.T) {
	addr, stop := startTestServer(t, ServerOptions{}, func(r *Registry) {
		r.Register("echo", ServiceFunc(func(method string, body []byte) ([]byte, error) {
			return append([]byte{}, body...), nil
		}))
	})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	// Successive calls on the same Client reuse one underlying connection
	// (connection() redials only when none exists yet or the previous one
	// has closed), each on its own
	// odd-numbered stream id.
	for i := 0; i < 8; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		resp, err := client.SendContext(ctx, "echo", "Call", []byte{byte(i)})
		cancel()
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(resp.Body) != 1 || resp.Body[0] != byte(i) {
			t.Fatalf("call %d body = %v, want [%d]", i, resp.Body, i)
		}
	}
}

func TestGracefulShutdownRefusesNewStreamsAfterDrain(t *testing.T) {
	server, addr, stop := startTestServerWithHandle(t, ServerOptions{}, func(r *Registry) {
		r.Register("echo", ServiceFunc(func(method string, body []byte) ([]byte, error) {
			return append([]byte{}, body...), nil
		}))
	})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if _, err := client.SendContext(ctx, "echo", "Call", []byte("x")); err != nil {
		cancel()
		t.Fatalf("Send before shutdown: %v", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel2()
	if _, err := client.SendContext(ctx2, "echo", "Call", []byte("y")); err == nil {
		t.Fatalf("Send after Shutdown: want error, got nil")
	}
}

func TestEndToEndRequestTrailersReachTheHandlerChain(t *testing.T) {
	sawChecksum := make(chan string, 1)
	opts := ServerOptions{
		Handlers: []Handler{HandlerFunc(func(ctx *Context) error {
			sawChecksum <- ctx.RequestHeader("x-request-checksum")
			return ctx.CallNext()
		})},
	}
	addr, stop := startTestServer(t, opts, func(r *Registry) {
		r.Register("echo", ServiceFunc(func(method string, body []byte) ([]byte, error) {
			return append([]byte{}, body...), nil
		}))
	})
	defer stop()

	client := NewClient(addr, ClientOptions{})
	defer client.Close()

	headers := &hpack.List{}
	headers.Add(":method", "POST")
	headers.Add(":path", "/echo/Call")
	headers.Add("content-type", "application/grpc")
	trailers := &hpack.List{}
	trailers.Add("x-request-checksum", "abc123")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Do(ctx, headers, []byte("hi"), trailers)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != OK {
		t.Fatalf("status = %s, want OK (message %q)", resp.Status, resp.Message)
	}

	select {
	case got := <-sawChecksum:
		if got != "abc123" {
			t.Fatalf("x-request-checksum = %q, want abc123", got)
		}
	case <-time.After(time.Second):
		t.Fatal("handler chain never observed the request trailers")
	}
}
