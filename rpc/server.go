package rpc

import (
	"context"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/mux2rpc/mux2rpc/wire"
	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

// Service handles unary calls for every method of one registered service
// name. A returned *BadStatus is recovered into the response trailers;
// any other error is reported as Unknown.
type Service interface {
	Handle(method string, body []byte) ([]byte, error)
}

// ServiceFunc adapts a plain function to Service for a single-method service.
type ServiceFunc func(method string, body []byte) ([]byte, error)

func (f ServiceFunc) Handle(method string, body []byte) ([]byte, error) { return f(method, body) }

// Registry is the server's service-name lookup table.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds or replaces the Service bound to name.
func (r *Registry) Register(name string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

func (r *Registry) lookup(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Handlers run before the built-in RPC dispatch handler, outermost
	// first (e.g. logging, auth).
	Handlers []Handler
	// MaxStreamsPerSecond caps new-stream admission via a token bucket;
	// zero disables the limiter.
	MaxStreamsPerSecond float64
	Logger              fasthttp.Logger
}

// Server dispatches inbound streams on one or more accepted connections to
// registered services.
type Server struct {
	registry *Registry
	chain    Handler
	limiter  *rate.Limiter
	logger   fasthttp.Logger

	wg           sync.WaitGroup
	shuttingDown int32 // atomic bool

	connsMu sync.Mutex
	conns   map[*wire.Connection]struct{}
}

// NewServer constructs a Server bound to registry.
func NewServer(registry *Registry, opts ServerOptions) *Server {
	s := &Server{
		registry: registry,
		logger:   opts.Logger,
		conns:    make(map[*wire.Connection]struct{}),
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[mux2rpc] ", log.LstdFlags)
	}
	if opts.MaxStreamsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxStreamsPerSecond), int(opts.MaxStreamsPerSecond))
	}
	handlers := append(append([]Handler{}, opts.Handlers...), HandlerFunc(s.dispatch))
	s.chain = Chain(handlers...)
	return s
}

// Serve runs the server-side handshake and read loop on c, dispatching a
// goroutine per inbound unary call as its stream reaches HalfClosedRemote.
// It returns once the connection closes.
func (s *Server) Serve(c net.Conn) error {
	conn := wire.NewConnection(c)

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	conn.SetOnFrame(func(stream *wire.Stream, fh *wire.FrameHeader) {
		if fh.Stream() == 0 {
			return
		}
		if stream.State() != wire.StateHalfClosedRemote {
			return
		}
		if atomic.LoadInt32(&s.shuttingDown) != 0 {
			s.refuse(conn, stream)
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.refuse(conn, stream)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.respond(conn, stream)
		}()
	})
	return conn.ServerStart()
}

// Shutdown announces on every connection this Server is currently serving
// that it will accept no further streams (a GOAWAY naming the highest
// stream id already dispatched on each), then waits for every in-flight
// handler goroutine to finish, or for ctx to be done, whichever comes
// first.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shuttingDown, 1)

	s.connsMu.Lock()
	conns := make([]*wire.Connection, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.Unlock()

	for _, conn := range conns {
		_ = conn.GoAwayGraceful(wire.NoError)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		for _, conn := range conns {
			_ = conn.Close()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) refuse(conn *wire.Connection, stream *wire.Stream) {
	s.logger.Printf("refusing stream %d", stream.ID())
	fh := wire.AcquireFrameHeader()
	fh.SetStream(stream.ID())
	rst := wire.AcquireRstStream()
	rst.SetCode(wire.RefusedStreamError)
	fh.SetBody(rst)
	_ = conn.WriteFrame(fh)
	conn.Streams().Delete(stream.ID())
}

// respond runs the handler chain for one completed inbound stream and
// emits HEADERS + DATA + trailer HEADERS.
func (s *Server) respond(conn *wire.Connection, stream *wire.Stream) {
	defer conn.Streams().Delete(stream.ID())

	ctx := &Context{Stream: stream, Status: OK}
	if err := s.chain.Call(ctx); err != nil {
		s.logger.Printf("handler error on stream %d: %v", stream.ID(), err)
		ctx.Status = Internal
		ctx.StatusMessage = err.Error()
	}

	headerBlock := conn.EncodeHeaders(pseudoAndContentType(ctx))
	s.writeHeaders(conn, stream, headerBlock, false)

	s.writeData(conn, stream, ctx.ResponseBody.Bytes())

	trailerBlock := conn.EncodeHeaders(trailerList(ctx))
	s.writeHeaders(conn, stream, trailerBlock, true)
}

func pseudoAndContentType(ctx *Context) *hpack.List {
	list := &hpack.List{}
	list.Add(":status", "200")
	ct := ctx.ContentType
	if ct == "" {
		ct = "application/grpc"
	}
	list.Add("content-type", ct)
	return list
}

func trailerList(ctx *Context) *hpack.List {
	list := &hpack.List{}
	list.Add("grpc-status", strconv.Itoa(int(ctx.Status)))
	if ctx.StatusMessage != "" {
		list.Add("grpc-message", url.QueryEscape(ctx.StatusMessage))
	}
	return list
}

func (s *Server) writeHeaders(conn *wire.Connection, stream *wire.Stream, block []byte, trailer bool) {
	fh := wire.AcquireFrameHeader()
	fh.SetStream(stream.ID())
	h := wire.AcquireHeaders()
	h.SetRawHeaders(block)
	h.SetEndHeaders(true)
	h.SetEndStream(trailer)
	fh.SetBody(h)
	if err := stream.Send(context.Background(), h); err != nil {
		wire.ReleaseFrameHeader(fh)
		return
	}
	_ = conn.WriteFrame(fh)
}

func (s *Server) writeData(conn *wire.Connection, stream *wire.Stream, body []byte) {
	fh := wire.AcquireFrameHeader()
	fh.SetStream(stream.ID())
	d := wire.AcquireData()
	d.SetData(body)
	d.SetEndStream(false)
	fh.SetBody(d)
	if err := stream.Send(context.Background(), d); err != nil {
		wire.ReleaseFrameHeader(fh)
		return
	}
	_ = conn.WriteFrame(fh)
}

// dispatch is the built-in RPC-framing handler: it reads the
// message envelope, splits the path into service/method, looks the
// service up in the registry, and encodes its response.
func (s *Server) dispatch(ctx *Context) error {
	ctx.ContentType = "application/grpc"

	path := ctx.RequestHeader(":path")
	parts := strings.SplitN(path, "/", 3)
	if len(parts) != 3 {
		ctx.Status = InvalidArgument
		ctx.StatusMessage = "malformed path"
		AppendEnvelope(&ctx.ResponseBody, nil)
		return nil
	}
	ctx.ServiceName, ctx.MethodName = parts[1], parts[2]

	_, body, _, err := ParseEnvelope(ctx.Stream.Data())
	if err != nil {
		ctx.Status = InvalidArgument
		ctx.StatusMessage = err.Error()
		AppendEnvelope(&ctx.ResponseBody, nil)
		return nil
	}
	ctx.RequestBody = body

	svc, ok := s.registry.lookup(ctx.ServiceName)
	if !ok {
		ctx.Status = NotFound
		AppendEnvelope(&ctx.ResponseBody, nil)
		return nil
	}

	resp, err := svc.Handle(ctx.MethodName, ctx.RequestBody)
	if err != nil {
		if bad, ok := err.(*BadStatus); ok {
			ctx.Fail(bad)
		} else {
			ctx.Status = Unknown
			ctx.StatusMessage = err.Error()
		}
		AppendEnvelope(&ctx.ResponseBody, nil)
		return nil
	}

	AppendEnvelope(&ctx.ResponseBody, resp)
	ctx.Status = OK
	return nil
}
