package icaptest

import (
	"io"
	"sync"

	"github.com/icapio/icap"
	"github.com/icapio/icap/protocol"
)

// Call records one invocation of a MockClient method.
type Call struct {
	Method  string // client method name, e.g. "Respmod", "ScanBytes"
	Service string
	Payload []byte // the scanned/submitted bytes, when the method carries any
	Preview int    // preview size, RespmodPreview only
}

// MockClient is a call-recording stand-in for the blocking client. Queue
// responses or errors ahead of time; an empty queue answers with a 204.
// Safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	calls     []Call
	queue     []queued
	connected bool
}

type queued struct {
	resp *protocol.Response
	err  error
}

var _ icap.Querier = (*MockClient)(nil)

// NewMockClient returns an empty mock. It answers every operation with
// 204 No Modification until responses or errors are queued.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue schedules resp as the answer to the next recorded operation.
func (m *MockClient) Enqueue(resp *protocol.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queued{resp: resp})
}

// EnqueueError schedules err as the outcome of the next recorded operation.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queued{err: err})
}

// Calls returns a copy of the recorded calls, in order.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many operations were recorded for the given method
// name, or in total for an empty name.
func (m *MockClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if method == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockClient) next(call Call) (*protocol.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if len(m.queue) == 0 {
		return NewResponse().Clean().Build(), nil
	}
	q := m.queue[0]
	m.queue = m.queue[1:]
	return q.resp, q.err
}

func (m *MockClient) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockClient) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockClient) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) Options(service string) (*protocol.Response, error) {
	return m.next(Call{Method: "Options", Service: service})
}

func (m *MockClient) Reqmod(service string, httpRequest, httpBody []byte, extra []protocol.Header) (*protocol.Response, error) {
	return m.next(Call{Method: "Reqmod", Service: service, Payload: httpBody})
}

func (m *MockClient) Respmod(service string, httpRequest, httpResponse []byte, extra []protocol.Header) (*protocol.Response, error) {
	return m.next(Call{Method: "Respmod", Service: service, Payload: httpResponse})
}

func (m *MockClient) RespmodPreview(service string, httpRequest, httpResponse []byte, previewSize int, extra []protocol.Header) (*protocol.Response, error) {
	return m.next(Call{Method: "RespmodPreview", Service: service, Payload: httpResponse, Preview: previewSize})
}

func (m *MockClient) ScanBytes(data []byte, service, filename string) (*protocol.Response, error) {
	return m.next(Call{Method: "ScanBytes", Service: service, Payload: data})
}

func (m *MockClient) ScanFile(path, service string) (*protocol.Response, error) {
	return m.next(Call{Method: "ScanFile", Service: service, Payload: []byte(path)})
}

func (m *MockClient) ScanStream(r io.Reader, service, filename string, chunkSize int) (*protocol.Response, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.next(Call{Method: "ScanStream", Service: service, Payload: data})
}
