package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Response is a parsed ICAP response.
type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       map[string]string
	Body          []byte
}

// Success reports whether the status code is in the 2xx range.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NoModification reports whether the server answered 204, i.e. the
// submitted content needs no adaptation.
func (r *Response) NoModification() bool {
	return r.StatusCode == 204
}

func (r *Response) String() string {
	return fmt.Sprintf("Response(%d %s)", r.StatusCode, r.StatusMessage)
}

var headerTerminator = []byte("\r\n\r\n")

// ParseResponse parses a complete raw response buffer. The body is taken
// verbatim from the bytes after the first blank line; interpreting
// Content-Length or chunking is the transport's job before calling this.
func ParseResponse(data []byte) (*Response, error) {
	head, body, _ := bytes.Cut(data, headerTerminator)
	lines := strings.Split(string(head), CRLF)

	// Status line: ICAP/1.0 <code> <message, may contain spaces>
	statusLine := lines[0]
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 3 {
		return nil, &Error{Message: fmt.Sprintf("invalid status line %q", statusLine)}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid status code in %q", statusLine), Err: err}
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		// Duplicate names overwrite: last write wins.
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return &Response{
		StatusCode:    code,
		StatusMessage: parts[2],
		Headers:       headers,
		Body:          body,
	}, nil
}
