package icap

import (
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

var errNotConnected = errors.New("not connected")

// Conn is the blocking transport: a single TCP (optionally TLS) connection
// with the per-operation timeout enforced through socket deadlines. ICAP is
// strictly one request in flight per connection, so a Conn serves one
// logical operation at a time.
type Conn struct {
	host      string
	port      int
	timeout   time.Duration
	tlsConfig *tls.Config
	clock     clock.Clock
	log       zerolog.Logger

	nc  net.Conn
	buf []byte
}

// NewConn creates a disconnected transport from an already-normalized
// configuration.
func NewConn(cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		host:      cfg.Host,
		port:      cfg.Port,
		timeout:   cfg.Timeout,
		tlsConfig: cfg.TLSConfig,
		clock:     cfg.Clock,
		log:       *cfg.Logger,
	}
}

func (c *Conn) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connected reports whether the transport holds an open connection.
func (c *Conn) Connected() bool {
	return c.nc != nil
}

// Connect dials the server, performing the TLS handshake when configured.
// It is a no-op when already connected.
func (c *Conn) Connect() error {
	if c.nc != nil {
		return nil
	}

	addr := c.addr()
	c.log.Debug().Str("addr", addr).Msg("connecting")

	dialer := net.Dialer{Timeout: c.timeout}
	nc, err := dialer.Dial("tcp", addr)
	if err != nil {
		return wrapIOError("connect", err)
	}

	if c.tlsConfig != nil {
		cfg := c.tlsConfig
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = c.host
		}
		tlsConn := tls.Client(nc, cfg)
		tlsConn.SetDeadline(c.clock.Now().Add(c.timeout))
		if err := tlsConn.Handshake(); err != nil {
			nc.Close()
			return wrapIOError("connect", err)
		}
		tlsConn.SetDeadline(time.Time{})
		nc = tlsConn
	}

	c.nc = nc
	c.buf = make([]byte, protocol.BufferSize)
	c.log.Info().Str("addr", addr).Bool("tls", c.tlsConfig != nil).Msg("connected")
	return nil
}

// Disconnect closes the connection. Reconnecting afterwards creates a fresh
// underlying connection.
func (c *Conn) Disconnect() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	c.log.Info().Str("addr", c.addr()).Msg("disconnected")
	return err
}

// Send writes the fully-built request buffer, bounded by the timeout. A
// failed send invalidates the connection.
func (c *Conn) Send(p []byte) error {
	if c.nc == nil {
		return &ConnectionError{Op: "send", Err: errNotConnected}
	}
	c.nc.SetWriteDeadline(c.clock.Now().Add(c.timeout))
	if _, err := c.nc.Write(p); err != nil {
		c.invalidate()
		return wrapIOError("send", err)
	}
	return nil
}

// Receive reads one complete response. Errors that abandon the framing
// mid-stream invalidate the connection.
func (c *Conn) Receive() (*protocol.Response, error) {
	if c.nc == nil {
		return nil, &ConnectionError{Op: "receive", Err: errNotConnected}
	}
	resp, err := protocol.ReadResponse(c.read)
	if err != nil && ShouldReconnect(err) {
		c.invalidate()
	}
	return resp, err
}

// read performs one deadline-bounded read of up to BufferSize bytes.
func (c *Conn) read() ([]byte, error) {
	c.nc.SetReadDeadline(c.clock.Now().Add(c.timeout))
	n, err := c.nc.Read(c.buf)
	if n > 0 {
		// The buffer is reused; hand out a copy.
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, wrapIOError("receive", err)
}

func (c *Conn) invalidate() {
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}

// wrapIOError classifies a network error into the taxonomy: deadline
// overruns become TimeoutError, everything else ConnectionError.
func wrapIOError(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}
