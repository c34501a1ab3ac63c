package icap

import (
	"io"

	"github.com/icapio/icap/protocol"
)

// Querier is the full method surface of the blocking client. Test doubles
// (see the icaptest package) can stand in for a real client through this
// interface alone, with no access to transport internals.
type Querier interface {
	Connect() error
	Disconnect() error
	Connected() bool

	Options(service string) (*protocol.Response, error)
	Reqmod(service string, httpRequest, httpBody []byte, extra []protocol.Header) (*protocol.Response, error)
	Respmod(service string, httpRequest, httpResponse []byte, extra []protocol.Header) (*protocol.Response, error)
	RespmodPreview(service string, httpRequest, httpResponse []byte, previewSize int, extra []protocol.Header) (*protocol.Response, error)

	ScanBytes(data []byte, service, filename string) (*protocol.Response, error)
	ScanFile(path, service string) (*protocol.Response, error)
	ScanStream(r io.Reader, service, filename string, chunkSize int) (*protocol.Response, error)
}
