package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResponseNoBody(t *testing.T) {
	read := feed([]byte("ICAP/1.0 204 No Modification\r\nISTag: \"x\"\r\n\r\n"))

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestReadResponseHeadersAcrossReads(t *testing.T) {
	read := feed(
		[]byte("ICAP/1.0 200"),
		[]byte(" OK\r\nMeth"),
		[]byte("ods: RESPMOD\r\n"),
		[]byte("\r\n"),
	)

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "RESPMOD", resp.Headers["Methods"])
}

func TestReadResponseContentLength(t *testing.T) {
	read := feed(
		[]byte("ICAP/1.0 200 OK\r\nContent-Length: 10\r\n\r\n0123"),
		[]byte("456789"),
	)

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(resp.Body))
}

func TestReadResponseContentLengthCaseInsensitive(t *testing.T) {
	read := feed([]byte("ICAP/1.0 200 OK\r\ncontent-length: 5\r\n\r\nhello"))

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestReadResponseContentLengthTruncatesExcess(t *testing.T) {
	read := feed([]byte("ICAP/1.0 200 OK\r\nContent-Length: 5\r\n\r\nhelloEXTRA"))

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestReadResponseShortBody(t *testing.T) {
	read := feed([]byte("ICAP/1.0 200 OK\r\nContent-Length: 100\r\n\r\n1234567"))

	_, err := ReadResponse(read)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Message, "expected 100 body bytes")
	assert.Contains(t, protoErr.Message, "received 7")
}

func TestReadResponseInvalidContentLength(t *testing.T) {
	read := feed([]byte("ICAP/1.0 200 OK\r\nContent-Length: abc\r\n\r\n"))

	_, err := ReadResponse(read)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Message, `invalid Content-Length "abc"`)
}

func TestReadResponseChunked(t *testing.T) {
	read := feed(
		[]byte("ICAP/1.0 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello"),
		[]byte("\r\n5\r\nWorld\r\n"),
		[]byte("0\r\n\r\n"),
	)

	resp, err := ReadResponse(read)
	require.NoError(t, err)
	assert.Equal(t, "HelloWorld", string(resp.Body))
}

func TestReadResponseChunkedPrematureClose(t *testing.T) {
	read := feed([]byte("ICAP/1.0 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHel"))

	_, err := ReadResponse(read)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Message, "connection closed mid-body")
}

func TestReadResponseClosedBeforeHeaders(t *testing.T) {
	// Connection closed before the header terminator: whatever arrived is
	// handed to the parser, which rejects the fragment.
	read := feed([]byte("ICAP/1.0 200"))

	_, err := ReadResponse(read)

	var protoErr *Error
	assert.ErrorAs(t, err, &protoErr)
}

func TestReadResponseReadErrorPropagates(t *testing.T) {
	readErr := errors.New("read tcp: i/o timeout")
	read := func() ([]byte, error) { return nil, readErr }

	_, err := ReadResponse(read)
	assert.ErrorIs(t, err, readErr)
}
