package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ChunkTerminator is the zero-length chunk that ends a chunked body.
var ChunkTerminator = []byte("0\r\n\r\n")

var crlfBytes = []byte(CRLF)

// ReadFunc performs a single bounded read from the underlying transport.
// It returns the bytes obtained by one read, (nil, io.EOF) once the peer
// has closed the connection, or any transport error as-is.
type ReadFunc func() ([]byte, error)

// EncodeChunk encodes data as a single HTTP chunk: the size in hexadecimal,
// CRLF, the payload, CRLF. Empty data encodes to nothing; the caller appends
// ChunkTerminator to end the sequence.
func EncodeChunk(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(data)+16)
	buf = fmt.Appendf(buf, "%X%s", len(data), CRLF)
	buf = append(buf, data...)
	buf = append(buf, crlfBytes...)
	return buf
}

// DecodeChunked decodes a chunked transfer-coded body. It starts from the
// bytes already buffered in initial and pulls more from read until the
// zero-size chunk is seen, returning the concatenated payload.
//
// An invalid chunk-size line or a connection that closes mid-chunk is a
// protocol *Error; other read errors propagate unchanged.
func DecodeChunked(initial []byte, read ReadFunc) ([]byte, error) {
	buf := initial
	var body []byte

	for {
		// Chunk-size line, up to CRLF.
		for !bytes.Contains(buf, crlfBytes) {
			data, err := read()
			if errors.Is(err, io.EOF) {
				return nil, NewError("connection closed mid-body")
			}
			if err != nil {
				return nil, errors.Wrap(err, "reading chunk size")
			}
			buf = append(buf, data...)
		}

		line, rest, _ := bytes.Cut(buf, crlfBytes)
		buf = rest

		sizeText := line
		if i := bytes.IndexByte(line, ';'); i >= 0 {
			sizeText = line[:i]
		}
		size, err := strconv.ParseUint(string(bytes.TrimSpace(sizeText)), 16, 63)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("invalid chunk size %q", line), Err: err}
		}

		if size == 0 {
			return body, nil
		}

		// Payload plus its trailing CRLF.
		for uint64(len(buf)) < size+2 {
			data, err := read()
			if errors.Is(err, io.EOF) {
				return nil, NewError("connection closed mid-body")
			}
			if err != nil {
				return nil, errors.Wrap(err, "reading chunk data")
			}
			buf = append(buf, data...)
		}

		body = append(body, buf[:size]...)
		buf = buf[size+2:]
	}
}
