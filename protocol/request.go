package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Section is one named segment of the encapsulated block, with its byte
// offset measured from the start of the block.
type Section struct {
	Name   string
	Offset int
}

// Request is a single ICAP request. Builders compute the Encapsulated
// offsets so that each offset equals the cumulative length of all prior
// sections, byte-exact against the transmitted block.
type Request struct {
	Method  string
	Host    string
	Port    int
	Service string
	Headers *Headers

	// Sections mirrors the Encapsulated header value. Encapsulated holds
	// the raw HTTP header sections exactly as they will be transmitted.
	Sections     []Section
	Encapsulated []byte

	// Body is the raw encapsulated body. It is chunk-encoded on
	// serialization when HasBody is set. When PreviewSize > 0 the body is
	// not serialized inline; transmission is negotiated by the caller.
	Body        []byte
	HasBody     bool
	PreviewSize int
}

// NewOptions builds an OPTIONS request for the given service. No body.
func NewOptions(host string, port int, service string) *Request {
	r := &Request{
		Method:   MethodOptions,
		Host:     host,
		Port:     port,
		Service:  service,
		Sections: []Section{{SectionNullBody, 0}},
	}
	r.Headers = baseHeaders(host, port)
	r.Headers.Set(HeaderEncapsulated, encapsulatedValue(r.Sections))
	return r
}

// NewReqmod builds a REQMOD request around the given HTTP request header
// bytes and optional body. With a body the sections are req-hdr + req-body,
// otherwise req-hdr + null-body.
func NewReqmod(host string, port int, service string, httpRequest, httpBody []byte) *Request {
	sections := []Section{{SectionReqHdr, 0}}
	hasBody := len(httpBody) > 0
	if hasBody {
		sections = append(sections, Section{SectionReqBody, len(httpRequest)})
	} else {
		sections = append(sections, Section{SectionNullBody, len(httpRequest)})
	}

	r := &Request{
		Method:       MethodReqmod,
		Host:         host,
		Port:         port,
		Service:      service,
		Sections:     sections,
		Encapsulated: httpRequest,
		Body:         httpBody,
		HasBody:      hasBody,
	}
	r.Headers = baseHeaders(host, port)
	r.Headers.Set(HeaderAllow, "204")
	r.Headers.Set(HeaderEncapsulated, encapsulatedValue(sections))
	return r
}

// NewRespmod builds a RESPMOD request. httpRequest is optional; when
// present the sections are req-hdr + res-hdr + res-body, otherwise
// res-hdr + res-body. httpRespHeader must include its terminating blank
// line. previewSize 0 disables the Preview header; positive values add it,
// leaving body transmission to the preview negotiation.
func NewRespmod(host string, port int, service string, httpRequest, httpRespHeader, httpRespBody []byte, previewSize int) *Request {
	var sections []Section
	if len(httpRequest) > 0 {
		sections = []Section{
			{SectionReqHdr, 0},
			{SectionResHdr, len(httpRequest)},
			{SectionResBody, len(httpRequest) + len(httpRespHeader)},
		}
	} else {
		sections = []Section{
			{SectionResHdr, 0},
			{SectionResBody, len(httpRespHeader)},
		}
	}

	encapsulated := make([]byte, 0, len(httpRequest)+len(httpRespHeader))
	encapsulated = append(encapsulated, httpRequest...)
	encapsulated = append(encapsulated, httpRespHeader...)

	r := &Request{
		Method:       MethodRespmod,
		Host:         host,
		Port:         port,
		Service:      service,
		Sections:     sections,
		Encapsulated: encapsulated,
		Body:         httpRespBody,
		HasBody:      true,
		PreviewSize:  previewSize,
	}
	r.Headers = baseHeaders(host, port)
	r.Headers.Set(HeaderAllow, "204")
	r.Headers.Set(HeaderEncapsulated, encapsulatedValue(sections))
	if previewSize > 0 {
		r.Headers.Set(HeaderPreview, strconv.Itoa(previewSize))
	}
	return r
}

// URL returns the icap:// URI used on the request line.
func (r *Request) URL() string {
	return fmt.Sprintf("icap://%s:%d/%s", r.Host, r.Port, r.Service)
}

// Head serializes the request line, the ICAP headers, and the encapsulated
// HTTP header sections: everything up to, not including, the body chunks.
func (r *Request) Head() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.URL())
	buf.WriteByte(' ')
	buf.WriteString(Version)
	buf.WriteString(CRLF)
	r.Headers.writeTo(&buf)
	buf.WriteString(CRLF)
	buf.Write(r.Encapsulated)
	return buf.Bytes()
}

// Bytes serializes the complete request with its body chunk-encoded inline:
// head, a single chunk when the body is non-empty, and the terminator.
// Requests without a body section (OPTIONS, REQMOD null-body) serialize to
// the head alone.
func (r *Request) Bytes() []byte {
	out := r.Head()
	if !r.HasBody {
		return out
	}
	out = append(out, EncodeChunk(r.Body)...)
	out = append(out, ChunkTerminator...)
	return out
}

func baseHeaders(host string, port int) *Headers {
	return NewHeaders(
		Header{HeaderHost, fmt.Sprintf("%s:%d", host, port)},
		Header{HeaderUserAgent, UserAgent},
	)
}

func encapsulatedValue(sections []Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Name + "=" + strconv.Itoa(s.Offset)
	}
	return strings.Join(parts, ", ")
}
