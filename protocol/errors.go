package protocol

// Error represents a protocol-level failure: a malformed status line, an
// invalid Content-Length or chunk size, or a connection that closed before a
// declared body was complete.
//
// Connection handling: the request/response framing is lost, the connection
// must be reconnected before reuse.
type Error struct {
	Message string
	Err     error // underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "icap protocol: " + e.Message + ": " + e.Err.Error()
	}
	return "icap protocol: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(message string) *Error {
	return &Error{Message: message}
}
