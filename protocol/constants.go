package protocol

// Protocol constants (RFC 3507)
const (
	Version     = "ICAP/1.0"
	DefaultPort = 1344
	UserAgent   = "go-icap-client/1.0"

	// BufferSize is the unit of a single transport read.
	BufferSize = 8192

	CRLF = "\r\n"
)

// ICAP methods
const (
	MethodOptions = "OPTIONS"
	MethodReqmod  = "REQMOD"
	MethodRespmod = "RESPMOD"
)

// Encapsulated header section names
const (
	SectionReqHdr   = "req-hdr"
	SectionReqBody  = "req-body"
	SectionResHdr   = "res-hdr"
	SectionResBody  = "res-body"
	SectionNullBody = "null-body"
)

// Header names used by the protocol
const (
	HeaderHost             = "Host"
	HeaderUserAgent        = "User-Agent"
	HeaderAllow            = "Allow"
	HeaderEncapsulated     = "Encapsulated"
	HeaderPreview          = "Preview"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
)
