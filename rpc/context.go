package rpc

import (
	"github.com/valyala/bytebufferpool"

	"github.com/mux2rpc/mux2rpc/wire"
)

// Context is the per-call request/response state synthesized from a
// stream's merged headers and data buffer. It flows through the
// handler chain; handlers read ServiceName/MethodName/RequestBody and
// write the response fields.
type Context struct {
	Stream *wire.Stream

	ServiceName string
	MethodName  string
	RequestBody []byte

	ContentType  string
	ResponseBody bytebufferpool.ByteBuffer

	Status        Code
	StatusMessage string

	next *chainNode
}

// Reset clears ctx for reuse across requests on the same connection.
func (ctx *Context) Reset() {
	ctx.Stream = nil
	ctx.ServiceName = ""
	ctx.MethodName = ""
	ctx.RequestBody = nil
	ctx.ContentType = ""
	ctx.ResponseBody.Reset()
	ctx.Status = OK
	ctx.StatusMessage = ""
	ctx.next = nil
}

// RequestHeader returns the value of header key from the merged request
// header list, or "" if absent.
func (ctx *Context) RequestHeader(key string) string {
	if ctx.Stream == nil {
		return ""
	}
	return ctx.Stream.Headers().Get(key)
}

// Fail sets the response status to a BadStatus's code/message, the
// recovery path for application errors.
func (ctx *Context) Fail(err *BadStatus) {
	ctx.Status = err.Code
	ctx.StatusMessage = err.Message
}
