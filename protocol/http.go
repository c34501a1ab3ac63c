package protocol

import "fmt"

// Synthetic HTTP messages wrapped around raw payloads by the scan
// convenience layer. Only enough structure to satisfy the RFC 3507
// encapsulation rules.

// HTTPScanRequest returns a minimal GET request header naming the scanned
// resource. An empty filename scans as "/scan".
func HTTPScanRequest(filename string) []byte {
	resource := "/scan"
	if filename != "" {
		resource = "/" + filename
	}
	return fmt.Appendf(nil, "GET %s HTTP/1.1%sHost: file-scan%s%s", resource, CRLF, CRLF, CRLF)
}

// HTTPScanResponse returns a 200 response header declaring the payload as
// an octet-stream of the given length.
func HTTPScanResponse(contentLength int) []byte {
	return fmt.Appendf(nil,
		"HTTP/1.1 200 OK%sContent-Type: application/octet-stream%sContent-Length: %d%s%s",
		CRLF, CRLF, contentLength, CRLF, CRLF)
}

// HTTPScanResponseChunked is the HTTPScanResponse variant for payloads of
// unknown length, streamed with chunked transfer-coding.
func HTTPScanResponseChunked() []byte {
	return []byte("HTTP/1.1 200 OK" + CRLF +
		"Content-Type: application/octet-stream" + CRLF +
		"Transfer-Encoding: chunked" + CRLF + CRLF)
}
