package icap

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/icapio/icap/protocol"
)

// CtxConn is the cooperative transport. It runs the same receive algorithm
// as Conn, but every operation suspends on a context: cancellation closes
// the underlying socket so no orphaned half-read connection remains, and
// the transport reads as disconnected afterwards.
type CtxConn struct {
	host      string
	port      int
	timeout   time.Duration
	tlsConfig *tls.Config
	clock     clock.Clock
	log       zerolog.Logger

	nc  net.Conn
	buf []byte
}

// NewCtxConn creates a disconnected cooperative transport.
func NewCtxConn(cfg Config) *CtxConn {
	cfg = cfg.withDefaults()
	return &CtxConn{
		host:      cfg.Host,
		port:      cfg.Port,
		timeout:   cfg.Timeout,
		tlsConfig: cfg.TLSConfig,
		clock:     cfg.Clock,
		log:       *cfg.Logger,
	}
}

func (c *CtxConn) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connected reports whether the transport holds an open connection.
func (c *CtxConn) Connected() bool {
	return c.nc != nil
}

// Connect dials the server. It is a no-op when already connected.
func (c *CtxConn) Connect(ctx context.Context) error {
	if c.nc != nil {
		return nil
	}

	addr := c.addr()
	c.log.Debug().Str("addr", addr).Msg("connecting")

	dialer := net.Dialer{Timeout: c.timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.classify(ctx, "connect", err)
	}

	if c.tlsConfig != nil {
		cfg := c.tlsConfig
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = c.host
		}
		tlsConn := tls.Client(nc, cfg)
		tlsConn.SetDeadline(c.clock.Now().Add(c.timeout))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return c.classify(ctx, "connect", err)
		}
		tlsConn.SetDeadline(time.Time{})
		nc = tlsConn
	}

	c.nc = nc
	c.buf = make([]byte, protocol.BufferSize)
	c.log.Info().Str("addr", addr).Bool("tls", c.tlsConfig != nil).Msg("connected")
	return nil
}

// Disconnect closes the connection.
func (c *CtxConn) Disconnect() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	c.log.Info().Str("addr", c.addr()).Msg("disconnected")
	return err
}

// Send writes the fully-built request buffer.
func (c *CtxConn) Send(ctx context.Context, p []byte) error {
	if c.nc == nil {
		return &ConnectionError{Op: "send", Err: errNotConnected}
	}
	stop := c.guard(ctx)
	defer stop()

	c.nc.SetWriteDeadline(c.clock.Now().Add(c.timeout))
	if _, err := c.nc.Write(p); err != nil {
		c.invalidate()
		return c.classify(ctx, "send", err)
	}
	if err := ctx.Err(); err != nil {
		c.invalidate()
		return c.classify(ctx, "send", err)
	}
	return nil
}

// Receive reads one complete response.
func (c *CtxConn) Receive(ctx context.Context) (*protocol.Response, error) {
	if c.nc == nil {
		return nil, &ConnectionError{Op: "receive", Err: errNotConnected}
	}
	stop := c.guard(ctx)
	defer stop()

	resp, err := protocol.ReadResponse(c.read)
	if err != nil {
		if ctx.Err() != nil {
			c.invalidate()
			return nil, c.classify(ctx, "receive", err)
		}
		if ShouldReconnect(err) {
			c.invalidate()
		}
		return nil, err
	}
	return resp, nil
}

// read performs one deadline-bounded read of up to BufferSize bytes.
func (c *CtxConn) read() ([]byte, error) {
	c.nc.SetReadDeadline(c.clock.Now().Add(c.timeout))
	n, err := c.nc.Read(c.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, wrapIOError("receive", err)
}

// guard closes the socket when ctx is cancelled while an operation is in
// flight. The returned stop function disarms the watcher.
func (c *CtxConn) guard(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	nc := c.nc
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			nc.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (c *CtxConn) invalidate() {
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}

// classify maps an operation failure to the taxonomy, giving the context
// verdict priority: a cancelled context reads as a connection error, an
// expired one as a timeout.
func (c *CtxConn) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &TimeoutError{Op: op, Err: ctxErr}
		}
		return &ConnectionError{Op: op, Err: ctxErr}
	}
	return wrapIOError(op, err)
}
