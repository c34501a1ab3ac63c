package protocol

import "bytes"

// Header is a single ICAP header field.
type Header struct {
	Name  string
	Value string
}

// Headers is an insertion-ordered header set with case-sensitive names.
// Setting an existing name overwrites its value in place, so serialization
// order is stable: last write wins, first position sticks.
type Headers struct {
	fields []Header
}

// NewHeaders returns a header set pre-populated in the given order.
func NewHeaders(fields ...Header) *Headers {
	h := &Headers{}
	for _, f := range fields {
		h.Set(f.Name, f.Value)
	}
	return h
}

func (h *Headers) Set(name, value string) {
	for i := range h.fields {
		if h.fields[i].Name == name {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Header{Name: name, Value: value})
}

func (h *Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (h *Headers) Len() int {
	return len(h.fields)
}

// All returns the fields in serialization order.
func (h *Headers) All() []Header {
	return h.fields
}

// writeTo serializes the set as "Name: value" lines, each CRLF-terminated.
func (h *Headers) writeTo(buf *bytes.Buffer) {
	for _, f := range h.fields {
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		buf.WriteString(f.Value)
		buf.WriteString(CRLF)
	}
}
