package icap

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/icapio/icap/protocol"
)

// CircuitBreaker guards a single request/response exchange. A tripped
// breaker fails fast without touching the connection.
type CircuitBreaker interface {
	Execute(func() (*protocol.Response, error)) (*protocol.Response, error)
}

// NewCircuitBreakerConfig returns a factory for Config.NewCircuitBreaker
// backed by gobreaker. The breaker opens once at least 3 exchanges were
// attempted and 60% of them failed.
func NewCircuitBreakerConfig(name string, maxRequests uint32, interval, timeout time.Duration) func() CircuitBreaker {
	return func() CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewCircuitBreaker[*protocol.Response](settings)
	}
}
