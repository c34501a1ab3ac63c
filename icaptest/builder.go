// Package icaptest provides test doubles for code built on the icap
// package: a fluent response builder, a call-recording mock client, and a
// scripted in-process ICAP server.
package icaptest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/icapio/icap/protocol"
)

// ResponseBuilder assembles protocol.Response values for tests without
// memorizing field conventions.
//
//	clean := icaptest.NewResponse().Clean().Build()
//	infected := icaptest.NewResponse().Virus("EICAR-Test-Signature").Build()
type ResponseBuilder struct {
	statusCode    int
	statusMessage string
	headers       map[string]string
	body          []byte
}

// NewResponse returns a builder preconfigured as 204 No Modification.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode:    204,
		statusMessage: "No Modification",
		headers:       map[string]string{},
	}
}

// Clean configures a 204 No Modification verdict (content is safe).
func (b *ResponseBuilder) Clean() *ResponseBuilder {
	b.statusCode = 204
	b.statusMessage = "No Modification"
	return b
}

// Virus configures a detection verdict with the conventional X-Virus-ID and
// X-Infection-Found headers.
func (b *ResponseBuilder) Virus(name string) *ResponseBuilder {
	b.statusCode = 200
	b.statusMessage = "OK"
	b.headers["X-Virus-ID"] = name
	b.headers["X-Infection-Found"] = fmt.Sprintf("Type=0; Resolution=2; Threat=%s;", name)
	return b
}

// Options configures an OPTIONS response advertising the given methods and
// preview size.
func (b *ResponseBuilder) Options(methods []string, preview int) *ResponseBuilder {
	if len(methods) == 0 {
		methods = []string{"RESPMOD", "REQMOD"}
	}
	b.statusCode = 200
	b.statusMessage = "OK"
	b.headers["Methods"] = strings.Join(methods, ", ")
	b.headers["Preview"] = strconv.Itoa(preview)
	b.headers["Transfer-Preview"] = "*"
	return b
}

// Error configures a server-error response.
func (b *ResponseBuilder) Error(code int, message string) *ResponseBuilder {
	b.statusCode = code
	b.statusMessage = message
	return b
}

// Continue configures a 100 Continue, for preview exchanges.
func (b *ResponseBuilder) Continue() *ResponseBuilder {
	b.statusCode = 100
	b.statusMessage = "Continue"
	return b
}

// WithStatus sets a custom status code and message.
func (b *ResponseBuilder) WithStatus(code int, message string) *ResponseBuilder {
	b.statusCode = code
	b.statusMessage = message
	return b
}

// WithHeader adds one header.
func (b *ResponseBuilder) WithHeader(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// WithBody sets the response body.
func (b *ResponseBuilder) WithBody(body []byte) *ResponseBuilder {
	b.body = body
	return b
}

// Build returns the assembled response.
func (b *ResponseBuilder) Build() *protocol.Response {
	headers := make(map[string]string, len(b.headers))
	for k, v := range b.headers {
		headers[k] = v
	}
	return &protocol.Response{
		StatusCode:    b.statusCode,
		StatusMessage: b.statusMessage,
		Headers:       headers,
		Body:          b.body,
	}
}

// Bytes serializes the assembled response to wire format, for feeding a
// Server script or a raw transport. Headers are written in sorted order
// plus a Content-Length when a body is present.
func (b *ResponseBuilder) Bytes() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ICAP/1.0 %d %s\r\n", b.statusCode, b.statusMessage)
	names := make([]string, 0, len(b.headers))
	for name := range b.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\r\n", name, b.headers[name])
	}
	if len(b.body) > 0 {
		fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(b.body))
	}
	sb.WriteString("\r\n")
	sb.Write(b.body)
	return []byte(sb.String())
}
