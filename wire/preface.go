package wire

import (
	"bufio"
	"bytes"
	"io"
)

// Preface is the 24-byte constant every client sends immediately after
// connecting, before any frame.
var Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// WritePreface writes the connection preface to bw and flushes it.
func WritePreface(bw *bufio.Writer) error {
	if _, err := bw.Write(Preface); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadPreface reads exactly len(Preface) bytes from br and verifies them
// against the expected constant. A mismatch (including EOF) returns
// ErrBadPreface.
func ReadPreface(br *bufio.Reader) error {
	b := make([]byte, len(Preface))
	if _, err := io.ReadFull(br, b); err != nil {
		return ErrBadPreface
	}
	if !bytes.Equal(b, Preface) {
		return ErrBadPreface
	}
	return nil
}
