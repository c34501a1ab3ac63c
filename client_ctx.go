package icap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/icapio/icap/protocol"
)

// ContextClient is the cooperative counterpart of Client: the same
// orchestration over the context-aware transport. Cancelling the context of
// an in-flight operation closes the connection and leaves the client
// disconnected.
//
// Like Client, one instance owns one connection and serves one logical
// operation at a time.
type ContextClient struct {
	host    string
	port    int
	conn    *CtxConn
	breaker CircuitBreaker
	log     zerolog.Logger
}

// NewContextClient creates a disconnected cooperative client.
func NewContextClient(cfg Config) (*ContextClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &ContextClient{
		host: cfg.Host,
		port: cfg.Port,
		conn: NewCtxConn(cfg),
		log:  *cfg.Logger,
	}
	if cfg.NewCircuitBreaker != nil {
		c.breaker = cfg.NewCircuitBreaker()
	}
	return c, nil
}

// Connect opens the connection. It is idempotent when already connected.
func (c *ContextClient) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect closes the connection. The client can reconnect afterwards.
func (c *ContextClient) Disconnect() error {
	return c.conn.Disconnect()
}

// Connected reports whether the client holds an open connection.
func (c *ContextClient) Connected() bool {
	return c.conn.Connected()
}

// Options queries the capabilities of the given service.
func (c *ContextClient) Options(ctx context.Context, service string) (*protocol.Response, error) {
	req := protocol.NewOptions(c.host, c.port, service)
	c.log.Debug().Str("service", service).Msg("sending OPTIONS")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(ctx, req.Bytes())
	})
}

// Reqmod submits an HTTP request (header bytes plus optional body) for
// request modification.
func (c *ContextClient) Reqmod(ctx context.Context, service string, httpRequest, httpBody []byte, extra []protocol.Header) (*protocol.Response, error) {
	req := protocol.NewReqmod(c.host, c.port, service, httpRequest, httpBody)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("body_bytes", len(httpBody)).Msg("sending REQMOD")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(ctx, req.Bytes())
	})
}

// Respmod submits an HTTP response for response modification.
func (c *ContextClient) Respmod(ctx context.Context, service string, httpRequest, httpResponse []byte, extra []protocol.Header) (*protocol.Response, error) {
	respHeader, respBody := splitHTTPMessage(httpResponse)
	req := protocol.NewRespmod(c.host, c.port, service, httpRequest, respHeader, respBody, 0)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("body_bytes", len(respBody)).Msg("sending RESPMOD")
	return c.exec(func() (*protocol.Response, error) {
		return c.roundTrip(ctx, req.Bytes())
	})
}

// RespmodPreview is Respmod with RFC 3507 preview negotiation. previewSize
// must be positive.
func (c *ContextClient) RespmodPreview(ctx context.Context, service string, httpRequest, httpResponse []byte, previewSize int, extra []protocol.Header) (*protocol.Response, error) {
	if previewSize <= 0 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf("preview size must be positive, got %d", previewSize)}
	}

	respHeader, respBody := splitHTTPMessage(httpResponse)
	req := protocol.NewRespmod(c.host, c.port, service, httpRequest, respHeader, respBody, previewSize)
	mergeHeaders(req.Headers, extra)
	c.log.Debug().Str("service", service).Int("preview", previewSize).Msg("sending RESPMOD with preview")

	if len(respBody) == 0 {
		return c.exec(func() (*protocol.Response, error) {
			return c.roundTrip(ctx, req.Bytes())
		})
	}

	head := req.Head()
	return c.exec(func() (*protocol.Response, error) {
		if err := c.conn.Connect(ctx); err != nil {
			return nil, err
		}
		resp, err := negotiatePreview(ctxConnAdapter{ctx: ctx, c: c.conn}, head, respBody, previewSize)
		if err != nil {
			return nil, err
		}
		return checkResponse(resp)
	})
}

// roundTrip performs one auto-connecting send/receive/validate exchange.
func (c *ContextClient) roundTrip(ctx context.Context, raw []byte) (*protocol.Response, error) {
	if err := c.conn.Connect(ctx); err != nil {
		return nil, err
	}
	if err := c.conn.Send(ctx, raw); err != nil {
		return nil, err
	}
	resp, err := c.conn.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return checkResponse(resp)
}

func (c *ContextClient) exec(fn func() (*protocol.Response, error)) (*protocol.Response, error) {
	if c.breaker != nil {
		return c.breaker.Execute(fn)
	}
	return fn()
}

// ctxConnAdapter binds a context to the cooperative transport for the
// preview negotiation.
type ctxConnAdapter struct {
	ctx context.Context
	c   *CtxConn
}

func (a ctxConnAdapter) send(p []byte) error { return a.c.Send(a.ctx, p) }

func (a ctxConnAdapter) receive() (*protocol.Response, error) { return a.c.Receive(a.ctx) }
