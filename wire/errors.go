package wire

import "fmt"

// ErrorCode identifies the reason a stream or connection was torn down.
type ErrorCode uint32

const (
	NoError            ErrorCode = 0x0
	ProtocolError      ErrorCode = 0x1
	InternalError      ErrorCode = 0x2
	FlowControlError   ErrorCode = 0x3
	SettingsTimeout    ErrorCode = 0x4
	StreamClosedError  ErrorCode = 0x5
	FrameSizeError     ErrorCode = 0x6
	RefusedStreamError ErrorCode = 0x7
	CancelError        ErrorCode = 0x8
	CompressionError   ErrorCode = 0x9
	ConnectError       ErrorCode = 0xa
	EnhanceYourCalm    ErrorCode = 0xb
	InadequateSecurity ErrorCode = 0xc
	HTTP11Required     ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	"NO_ERROR", "PROTOCOL_ERROR", "INTERNAL_ERROR", "FLOW_CONTROL_ERROR",
	"SETTINGS_TIMEOUT", "STREAM_CLOSED", "FRAME_SIZE_ERROR",
	"REFUSED_STREAM", "CANCEL", "COMPRESSION_ERROR", "CONNECT_ERROR",
	"ENHANCE_YOUR_CALM", "INADEQUATE_SECURITY", "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR_CODE(%d)", uint32(c))
}

// frameScope distinguishes a connection-fatal error from a stream-fatal one.
type frameScope int

const (
	scopeStream frameScope = iota
	scopeConnection
)

// Error is the error type carried by GOAWAY and RST_STREAM handling: it
// records the error code, an optional stream id and a human-readable reason.
// It is returned from codec and stream operations and inspected by the
// connection's read loop to decide between closing the connection and
// answering with RST_STREAM.
type Error struct {
	Code   ErrorCode
	Stream uint32
	Reason string
	scope  frameScope
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("stream=%d code=%s", e.Stream, e.Code)
	}
	return fmt.Sprintf("stream=%d code=%s: %s", e.Stream, e.Code, e.Reason)
}

// Is supports errors.Is comparisons against a bare ErrorCode-keyed sentinel
// by comparing error codes, mirroring how the connection's error paths
// branch on code rather than on a specific *Error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewGoAwayError builds a connection-fatal error: the connection's read loop
// returns it and closes the socket; no GOAWAY frame is written first.
func NewGoAwayError(code ErrorCode, reason string) *Error {
	return &Error{Code: code, Reason: reason, scope: scopeConnection}
}

// NewResetStreamError builds a stream-fatal error: the connection's read
// loop responds to it by writing RST_STREAM on the given stream and
// continuing to serve the rest of the connection.
func NewResetStreamError(stream uint32, code ErrorCode, reason string) *Error {
	return &Error{Code: code, Stream: stream, Reason: reason, scope: scopeStream}
}

// IsConnectionFatal reports whether err (if a *Error) should tear down the
// whole connection rather than just the offending stream.
func IsConnectionFatal(err error) bool {
	e, ok := err.(*Error)
	return ok && e.scope == scopeConnection
}

var (
	ErrShortFrame       = NewGoAwayError(FrameSizeError, "short frame")
	ErrPayloadExceeds   = NewGoAwayError(FrameSizeError, "payload exceeds maximum frame size")
	ErrUnknownFrameType = NewGoAwayError(ProtocolError, "unknown frame type")
	ErrBadPreface       = NewGoAwayError(ProtocolError, "invalid connection preface")
	ErrInvalidCompression = NewGoAwayError(CompressionError, "invalid header compression")
)
