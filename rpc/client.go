package rpc

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/valyala/bytebufferpool"

	"github.com/mux2rpc/mux2rpc/wire"
	"github.com/mux2rpc/mux2rpc/wire/hpack"
)

// Response carries a completed unary call's grpc-status and grpc-message
// trailer values and its response body.
type Response struct {
	Status  Code
	Message string
	Body    []byte
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// ContentType overrides the request content-type; defaults to
	// "application/grpc".
	ContentType string
}

// Client initiates a connection and issues unary RPC invocations. It is
// safe for concurrent use: each Send allocates its own stream on the
// shared connection.
type Client struct {
	addr string
	opts ClientOptions

	mu   sync.Mutex
	conn *wire.Connection
}

// NewClient constructs a Client that dials addr lazily on first Send.
func NewClient(addr string, opts ClientOptions) *Client {
	if opts.ContentType == "" {
		opts.ContentType = "application/grpc"
	}
	return &Client{addr: addr, opts: opts}
}

// connection returns the shared *wire.Connection, dialing and performing
// the client handshake on first use, or again once the previous connection
// has closed. c.mu is held for the whole call.
func (c *Client) connection() (*wire.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.State() == wire.ConnNew {
		return c.conn, nil
	}

	nc, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, err
	}
	conn := wire.NewConnection(nc)
	go func() {
		_ = conn.ClientStart()
	}()
	c.conn = conn
	return conn, nil
}

// Send issues one unary RPC to "/"+service+"/"+method carrying body, waits
// for the stream to close, and returns the assembled response.
func (c *Client) Send(service, method string, body []byte) (*Response, error) {
	return c.SendContext(context.Background(), service, method, body)
}

// SendContext is Send with a caller-supplied context, honored while the
// call blocks on outbound flow control or on the stream's completion.
func (c *Client) SendContext(ctx context.Context, service, method string, body []byte) (*Response, error) {
	reqHeaders := &hpack.List{}
	reqHeaders.Add(":method", "POST")
	reqHeaders.Add(":path", "/"+service+"/"+method)
	reqHeaders.Add("content-type", c.opts.ContentType)
	return c.Do(ctx, reqHeaders, body, nil)
}

// Do issues one unary call with a caller-built header list and optional
// trailers: HEADERS, then DATA carrying the enveloped body with
// END_STREAM iff no trailers, then (when present) a trailer HEADERS frame
// with END_STREAM|END_HEADERS.
func (c *Client) Do(ctx context.Context, headers *hpack.List, body []byte, trailers *hpack.List) (*Response, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	streamID := conn.NextStreamID()
	stream := conn.OpenStream(streamID)

	block := conn.EncodeHeaders(headers)

	fh := wire.AcquireFrameHeader()
	fh.SetStream(streamID)
	h := wire.AcquireHeaders()
	h.SetRawHeaders(block)
	h.SetEndHeaders(true)
	h.SetEndStream(false)
	fh.SetBody(h)
	if err := stream.Send(ctx, h); err != nil {
		wire.ReleaseFrameHeader(fh)
		return nil, err
	}
	if err := conn.WriteFrame(fh); err != nil {
		return nil, err
	}

	var envelope bytebufferpool.ByteBuffer
	AppendEnvelope(&envelope, body)

	fh = wire.AcquireFrameHeader()
	fh.SetStream(streamID)
	d := wire.AcquireData()
	d.SetData(envelope.Bytes())
	d.SetEndStream(trailers == nil)
	fh.SetBody(d)
	if err := stream.Send(ctx, d); err != nil {
		wire.ReleaseFrameHeader(fh)
		return nil, err
	}
	if err := conn.WriteFrame(fh); err != nil {
		return nil, err
	}

	if trailers != nil {
		trailerBlock := conn.EncodeHeaders(trailers)
		fh = wire.AcquireFrameHeader()
		fh.SetStream(streamID)
		th := wire.AcquireHeaders()
		th.SetRawHeaders(trailerBlock)
		th.SetEndHeaders(true)
		th.SetEndStream(true)
		fh.SetBody(th)
		if err := stream.Send(ctx, th); err != nil {
			wire.ReleaseFrameHeader(fh)
			return nil, err
		}
		if err := conn.WriteFrame(fh); err != nil {
			return nil, err
		}
	}

	select {
	case <-stream.Closed():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return c.readResponse(stream)
}

func (c *Client) readResponse(stream *wire.Stream) (*Response, error) {
	resp := &Response{Status: OK}

	if status := stream.Headers().Get("grpc-status"); status != "" {
		if n, err := strconv.Atoi(status); err == nil {
			resp.Status = Code(n)
		}
	}
	if msg := stream.Headers().Get("grpc-message"); msg != "" {
		if unescaped, err := url.QueryUnescape(msg); err == nil {
			msg = unescaped
		}
		resp.Message = msg
	}

	_, body, _, err := ParseEnvelope(stream.Data())
	if err != nil {
		return resp, err
	}
	resp.Body = body
	return resp, nil
}

// Close tears down the underlying connection, if one was ever established.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
