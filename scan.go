package icap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/icapio/icap/protocol"
)

// ScanBytes wraps data in a synthetic HTTP exchange and submits it via
// RESPMOD. filename, when non-empty, names the scanned resource in the
// synthesized request.
func (c *Client) ScanBytes(data []byte, service, filename string) (*protocol.Response, error) {
	httpRequest := protocol.HTTPScanRequest(filename)
	httpResponse := append(protocol.HTTPScanResponse(len(data)), data...)
	c.log.Info().Int("bytes", len(data)).Str("filename", filename).Msg("scanning bytes")
	return c.Respmod(service, httpRequest, httpResponse, nil)
}

// ScanFile reads the file at path and scans its contents.
func (c *Client) ScanFile(path, service string) (*protocol.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, err
	}
	c.log.Info().Str("path", path).Msg("scanning file")
	return c.ScanBytes(data, service, filepath.Base(path))
}

// ScanStream scans the contents of r. chunkSize 0 buffers the whole stream
// in memory and delegates to ScanBytes. A positive chunkSize instead
// streams the source in fixed-size reads, chunk-encoding each piece
// straight to the transport — the one path where the outbound body size
// need not be known in advance.
func (c *Client) ScanStream(r io.Reader, service, filename string, chunkSize int) (*protocol.Response, error) {
	if chunkSize < 0 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf("chunk size must not be negative, got %d", chunkSize)}
	}
	if chunkSize == 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, &protocol.Error{Message: "reading source stream", Err: err}
		}
		return c.ScanBytes(data, service, filename)
	}

	httpRequest := protocol.HTTPScanRequest(filename)
	req := protocol.NewRespmod(c.host, c.port, service, httpRequest, protocol.HTTPScanResponseChunked(), nil, 0)
	head := req.Head()
	c.log.Info().Str("filename", filename).Int("chunk_size", chunkSize).Msg("scanning stream")

	return c.exec(func() (*protocol.Response, error) {
		if err := c.conn.Connect(); err != nil {
			return nil, err
		}
		if err := c.conn.Send(head); err != nil {
			return nil, err
		}

		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if sendErr := c.conn.Send(protocol.EncodeChunk(buf[:n])); sendErr != nil {
					return nil, sendErr
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// The exchange cannot be finished; the connection is
				// stuck mid-request.
				c.conn.invalidate()
				return nil, &protocol.Error{Message: "reading source stream", Err: err}
			}
		}

		if err := c.conn.Send(protocol.ChunkTerminator); err != nil {
			return nil, err
		}
		resp, err := c.conn.Receive()
		if err != nil {
			return nil, err
		}
		return checkResponse(resp)
	})
}
