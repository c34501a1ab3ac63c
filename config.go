package icap

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/icapio/icap/protocol"
)

// DefaultPort is the IANA-assigned ICAP port.
const DefaultPort = protocol.DefaultPort

// DefaultTimeout bounds each individual I/O operation when Config.Timeout
// is zero.
const DefaultTimeout = 10 * time.Second

// Config holds the settings shared by both client variants. Only Host is
// required.
type Config struct {
	// Host is the ICAP server hostname or IP address. Required.
	Host string

	// Port is the ICAP server port. Zero means DefaultPort.
	Port int

	// Timeout bounds each individual I/O operation: connect, each send,
	// each read. It is not an end-to-end deadline; a response assembled
	// from many partial reads may take a multiple of it.
	Timeout time.Duration

	// TLSConfig enables TLS when non-nil. An empty ServerName defaults to
	// Host.
	TLSConfig *tls.Config

	// Logger receives protocol traces and connection lifecycle events.
	// Nil disables logging.
	Logger *zerolog.Logger

	// Clock supplies the time base for I/O deadlines. Nil uses the wall
	// clock.
	Clock clock.Clock

	// NewCircuitBreaker, when set, creates a circuit breaker the client
	// wraps around every request/response exchange.
	NewCircuitBreaker func() CircuitBreaker
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

func (c Config) validate() error {
	if c.Host == "" {
		return &InvalidArgumentError{Message: "host must not be empty"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &InvalidArgumentError{Message: fmt.Sprintf("port %d out of range", c.Port)}
	}
	return nil
}
