package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadResponse assembles one complete response from a sequence of bounded
// reads and parses it. Both the blocking and the cooperative transport feed
// it their own read closure; the algorithm is identical for both:
//
//  1. accumulate reads until the header terminator appears (a closed
//     connection ends this phase with whatever arrived),
//  2. complete the body per Content-Length or chunked transfer-coding,
//  3. parse the assembled buffer into a typed Response.
//
// Timeout and connection errors surfaced by read propagate unchanged.
func ReadResponse(read ReadFunc) (*Response, error) {
	var raw []byte
	for !bytes.Contains(raw, headerTerminator) {
		data, err := read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw = append(raw, data...)
	}

	head, leftover, found := bytes.Cut(raw, headerTerminator)
	if !found {
		// No complete header section; let the parser report what is wrong.
		return ParseResponse(raw)
	}

	contentLength, chunked, err := bodyFraming(head)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch {
	case contentLength >= 0:
		body = leftover
		for len(body) < contentLength {
			data, err := read()
			if errors.Is(err, io.EOF) {
				return nil, &Error{Message: fmt.Sprintf(
					"incomplete response: expected %d body bytes, received %d",
					contentLength, len(body))}
			}
			if err != nil {
				return nil, err
			}
			body = append(body, data...)
		}
		body = body[:contentLength]

	case chunked:
		body, err = DecodeChunked(leftover, read)
		if err != nil {
			return nil, err
		}

	default:
		// No body-length indicator (e.g. 204): complete as-is. Compliant
		// servers send nothing past the headers here, so any leftover is
		// ignored residue.
	}

	full := make([]byte, 0, len(head)+len(headerTerminator)+len(body))
	full = append(full, head...)
	full = append(full, headerTerminator...)
	full = append(full, body...)
	return ParseResponse(full)
}

// bodyFraming scans the header section for Content-Length and
// Transfer-Encoding: chunked, case-insensitively. Content-Length is -1 when
// absent; a non-integer value is an immediate protocol error.
func bodyFraming(head []byte) (contentLength int, chunked bool, err error) {
	contentLength = -1
	lines := strings.Split(string(head), CRLF)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			n, convErr := strconv.Atoi(value)
			if convErr != nil {
				return 0, false, &Error{
					Message: fmt.Sprintf("invalid Content-Length %q", value),
					Err:     convErr,
				}
			}
			contentLength = n
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				chunked = true
			}
		}
	}
	return contentLength, chunked, nil
}
