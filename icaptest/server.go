package icaptest

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Server is a scripted in-process ICAP server for integration tests. It
// reads complete requests (ICAP head, encapsulated headers, body chunks up
// to the zero-chunk terminator) and answers with the scripted raw responses
// in order; an exhausted script answers 204 No Modification. A scripted
// 100 Continue makes the server read the remainder chunks before serving
// the next scripted response, which drives the preview exchange end to end.
type Server struct {
	l  net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	script   [][]byte
	requests [][]byte
}

// NewServer starts a server on a loopback port.
func NewServer() (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{l: l}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Host returns the loopback address the server listens on.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.l.Addr().String())
	return host
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	_, portText, _ := net.SplitHostPort(s.l.Addr().String())
	port, _ := strconv.Atoi(portText)
	return port
}

// Script appends raw responses to the reply queue, served in order across
// all requests and connections.
func (s *Server) Script(responses ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, responses...)
}

// Requests returns the raw request payloads received so far. The remainder
// of a preview exchange is recorded as its own entry.
func (s *Server) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

// Close stops accepting and waits for in-flight connections to finish.
func (s *Server) Close() {
	s.l.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serve(conn)
		}()
	}
}

func (s *Server) nextResponse() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return NewResponse().Clean().Bytes()
	}
	resp := s.script[0]
	s.script = s.script[1:]
	return resp
}

func (s *Server) record(req []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

var headerEnd = []byte("\r\n\r\n")

func (s *Server) serve(conn net.Conn) {
	var buf []byte
	tmp := make([]byte, 4096)
	readMore := func() bool {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		return err == nil || n > 0
	}

	for {
		// ICAP head.
		for !bytes.Contains(buf, headerEnd) {
			if !readMore() {
				return
			}
		}
		i := bytes.Index(buf, headerEnd)
		head := string(buf[:i])
		buf = buf[i+len(headerEnd):]
		request := append([]byte(head), headerEnd...)

		// Encapsulated HTTP header sections.
		hdrLen, hasBody := encapsulatedLayout(head)
		for len(buf) < hdrLen {
			if !readMore() {
				return
			}
		}
		request = append(request, buf[:hdrLen]...)
		buf = buf[hdrLen:]

		// Body chunks up to and including the zero-chunk terminator.
		if hasBody {
			n := chunkedLen(buf)
			for n < 0 {
				if !readMore() {
					return
				}
				n = chunkedLen(buf)
			}
			request = append(request, buf[:n]...)
			buf = buf[n:]
		}
		s.record(request)

		resp := s.nextResponse()
		if _, err := conn.Write(resp); err != nil {
			return
		}

		if bytes.HasPrefix(resp, []byte("ICAP/1.0 100")) {
			// Preview remainder, then the final verdict.
			n := chunkedLen(buf)
			for n < 0 {
				if !readMore() {
					return
				}
				n = chunkedLen(buf)
			}
			s.record(append([]byte(nil), buf[:n]...))
			buf = buf[n:]

			if _, err := conn.Write(s.nextResponse()); err != nil {
				return
			}
		}
	}
}

// encapsulatedLayout extracts from the ICAP head how many encapsulated
// HTTP header bytes follow it and whether a chunked body comes after them.
func encapsulatedLayout(head string) (hdrLen int, hasBody bool) {
	for _, line := range strings.Split(head, "\r\n")[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Encapsulated") {
			continue
		}
		sections := strings.Split(value, ",")
		last := strings.TrimSpace(sections[len(sections)-1])
		sectionName, offsetText, _ := strings.Cut(last, "=")
		offset, err := strconv.Atoi(strings.TrimSpace(offsetText))
		if err != nil {
			return 0, false
		}
		return offset, strings.TrimSpace(sectionName) != "null-body"
	}
	return 0, false
}

// chunkedLen returns the length of the complete chunk sequence (terminator
// included) at the start of buf, or -1 when more data is needed.
func chunkedLen(buf []byte) int {
	off := 0
	for {
		i := bytes.Index(buf[off:], []byte("\r\n"))
		if i < 0 {
			return -1
		}
		line := buf[off : off+i]
		sizeText := line
		if j := bytes.IndexByte(line, ';'); j >= 0 {
			sizeText = line[:j]
		}
		size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeText)), 16, 64)
		if err != nil {
			return -1
		}
		off += i + 2
		if size == 0 {
			if len(buf)-off < 2 {
				return -1
			}
			return off + 2
		}
		if int64(len(buf)-off) < size+2 {
			return -1
		}
		off += int(size) + 2
	}
}
