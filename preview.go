package icap

import (
	"fmt"

	"github.com/icapio/icap/protocol"
)

// sendReceiver is the minimal transport capability the preview negotiation
// drives. Both transports adapt to it.
type sendReceiver interface {
	send(p []byte) error
	receive() (*protocol.Response, error)
}

// negotiatePreview runs the RFC 3507 preview exchange: send the request
// head plus the first previewSize body bytes as a preview chunk, then act
// on the server's verdict.
//
// When the whole body fits in the preview, the chunk-size line carries the
// ieof marker, a single write occurs, and the one response read is final
// whatever its status. Otherwise a 100 Continue triggers transmission of
// the remainder followed by a second, final read; any other status is final
// immediately and the remainder is never sent.
//
// The final response is returned unvalidated; status mapping is the
// caller's job.
func negotiatePreview(t sendReceiver, head, body []byte, previewSize int) (*protocol.Response, error) {
	n := previewSize
	if n > len(body) {
		n = len(body)
	}
	previewPart := body[:n]

	if len(body) <= previewSize {
		chunk := fmt.Appendf(nil, "%X; ieof%s", len(previewPart), protocol.CRLF)
		chunk = append(chunk, previewPart...)
		chunk = append(chunk, protocol.CRLF...)
		chunk = append(chunk, protocol.ChunkTerminator...)
		if err := t.send(append(head, chunk...)); err != nil {
			return nil, err
		}
		return t.receive()
	}

	payload := append(protocol.EncodeChunk(previewPart), protocol.ChunkTerminator...)
	if err := t.send(append(head, payload...)); err != nil {
		return nil, err
	}
	resp, err := t.receive()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 100 {
		// Early final verdict; the remainder is never sent.
		return resp, nil
	}

	remainder := append(protocol.EncodeChunk(body[previewSize:]), protocol.ChunkTerminator...)
	if err := t.send(remainder); err != nil {
		return nil, err
	}
	return t.receive()
}
