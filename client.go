package icap

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/icapio/icap/protocol"
)

// Client is the blocking ICAP client. It owns exactly one connection; it is
// not safe for concurrent use by multiple goroutines without external
// synchronization — concurrent operations on one instance would interleave
// on the single request/response pipeline. Give each concurrent logical
// operation its own Client.
type Client struct {
	host    string
	port    int
	conn    *Conn
	breaker CircuitBreaker
	log     zerolog.Logger
}

var _ Querier = (*Client)(nil)

// NewClient creates a disconnected client. Operations connect on demand.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		host: cfg.Host,
		port: cfg.Port,
		conn: NewConn(cfg),
		log:  *cfg.Logger,
	}
	if cfg.NewCircuitBreaker != nil {
		c.breaker = cfg.NewCircuitBreaker()
	}
	return c, nil
}

// Connect opens the connection. It is idempotent when already connected.
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// Disconnect closes the connection. The client can reconnect afterwards.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// Connected reports whether the client holds an open connection.
func (c *Client) Connected() bool {
	return c.conn.Connected()
}

// Options queries the capabilities of the given service.
func (c *Client) Options(service string) (*protocol.Response, error) {
	req := protocol.NewOptions(c.host, c.port, service)
	c.log.Debug().Str("service", service).Msg("sending OPTIONS")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(req.Bytes())
	})
}

// Reqmod submits an HTTP request (header bytes plus optional body) for
// request modification. Extra headers merge into, and may override, the
// defaults.
func (c *Client) Reqmod(service string, httpRequest, httpBody []byte, extra []protocol.Header) (*protocol.Response, error) {
	req := protocol.NewReqmod(c.host, c.port, service, httpRequest, httpBody)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("body_bytes", len(httpBody)).Msg("sending REQMOD")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(req.Bytes())
	})
}

// Respmod submits an HTTP response for response modification. httpResponse
// is split at the first blank line; input without one is treated as
// headers-only.
func (c *Client) Respmod(service string, httpRequest, httpResponse []byte, extra []protocol.Header) (*protocol.Response, error) {
	respHeader, respBody := splitHTTPMessage(httpResponse)
	req := protocol.NewRespmod(c.host, c.port, service, httpRequest, respHeader, respBody, 0)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("body_bytes", len(respBody)).Msg("sending RESPMOD")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(req.Bytes())
	})
}

// RespmodPreview is Respmod with RFC 3507 preview negotiation: only the
// first previewSize body bytes are sent up front, the rest only if the
// server asks for them. previewSize must be positive.
func (c *Client) RespmodPreview(service string, httpRequest, httpResponse []byte, previewSize int, extra []protocol.Header) (*protocol.Response, error) {
	if previewSize <= 0 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf("preview size must be positive, got %d", previewSize)}
	}

	respHeader, respBody := splitHTTPMessage(httpResponse)
	req := protocol.NewRespmod(c.host, c.port, service, httpRequest, respHeader, respBody, previewSize)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("preview", previewSize).Msg("sending RESPMOD with preview")

	if len(respBody) == 0 {
		// Nothing to preview; an ordinary exchange carries the empty body.
		return c.exec(func() (*protocol.Response, error) {
			return c.roundTrip(req.Bytes())
		})
	}

	head := req.Head()
	return c.exec(func() (*protocol.Response, error) {
		if err := c.conn.Connect(); err != nil {
			return nil, err
		}
		resp, err := negotiatePreview(connAdapter{c.conn}, head, respBody, previewSize)
		if err != nil {
			return nil, err
		}
		return checkResponse(resp)
	})
}

// roundTrip performs one auto-connecting send/receive/validate exchange.
func (c *Client) roundTrip(raw []byte) (*protocol.Response, error) {
	if err := c.conn.Connect(); err != nil {
		return nil, err
	}
	if err := c.conn.Send(raw); err != nil {
		return nil, err
	}
	resp, err := c.conn.Receive()
	if err != nil {
		return nil, err
	}
	return checkResponse(resp)
}

// exec routes an exchange through the circuit breaker when one is
// configured.
func (c *Client) exec(fn func() (*protocol.Response, error)) (*protocol.Response, error) {
	if c.breaker != nil {
		return c.breaker.Execute(fn)
	}
	return fn()
}

// connAdapter exposes the blocking transport to the preview negotiation.
type connAdapter struct{ c *Conn }

func (a connAdapter) send(p []byte) error { return a.c.Send(p) }

func (a connAdapter) receive() (*protocol.Response, error) { return a.c.Receive() }

// checkResponse escalates structurally valid 5xx responses to ServerError.
// Never retried; that is the caller's call.
func checkResponse(resp *protocol.Response) (*protocol.Response, error) {
	if resp.StatusCode >= 500 && resp.StatusCode < 600 {
		return nil, &ServerError{StatusCode: resp.StatusCode, StatusMessage: resp.StatusMessage}
	}
	return resp, nil
}

func mergeHeaders(h *protocol.Headers, extra []protocol.Header) {
	for _, f := range extra {
		h.Set(f.Name, f.Value)
	}
}

var httpHeaderEnd = []byte("\r\n\r\n")

// splitHTTPMessage splits an HTTP message at the first blank line, keeping
// the terminator with the header part.
func splitHTTPMessage(msg []byte) (header, body []byte) {
	head, body, found := bytes.Cut(msg, httpHeaderEnd)
	if !found {
		return msg, nil
	}
	return msg[:len(head)+len(httpHeaderEnd)], body
}
