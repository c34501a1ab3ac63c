package icap

import (
	"errors"
	"fmt"

	"github.com/icapio/icap/protocol"
)

// Error types for ICAP operations. Callers branch on the variant with
// errors.As; none of these are retried internally.

// ConnectionError wraps a network failure while dialing, sending, or
// receiving: DNS/TLS errors, resets, broken pipes. The connection object is
// invalid afterwards and must be reconnected before reuse.
type ConnectionError struct {
	Op  string // operation that failed (connect, send, receive)
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("icap: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a single I/O operation (connect, one send, one read)
// exceeding the configured timeout. Timeouts apply per operation, not to
// the logical call as a whole.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("icap: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Timeout reports true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool {
	return true
}

// ServerError reports a structurally valid response with a status code in
// [500, 600). It is raised only after a successful parse; garbled 5xx
// responses surface as protocol errors instead.
type ServerError struct {
	StatusCode    int
	StatusMessage string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("icap: server error: %d %s", e.StatusCode, e.StatusMessage)
}

// InvalidArgumentError reports caller misuse detected before any I/O, such
// as a non-positive preview size.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "icap: invalid argument: " + e.Message
}

// NotFoundError reports a referenced local file that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "icap: file not found: " + e.Path
}

// ShouldReconnect reports whether err left the connection in an unusable
// state. Connection, timeout, and protocol errors all abandon the
// request/response framing mid-stream; server errors and argument errors
// leave the connection intact.
func ShouldReconnect(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError
	var timeoutErr *TimeoutError
	var protoErr *protocol.Error
	return errors.As(err, &connErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &protoErr)
}
