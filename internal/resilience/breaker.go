// Package resilience wraps upstream calls in circuit breakers.
package resilience

import (
	"errors"
	"log/slog"
	"time"

	"momento/internal/observability"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes a breaker. Zero values fall back to the defaults below.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	OpenTimeout  time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings opens after 60% failures over at least 5 requests and
// probes again after 30 seconds.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  3,
	Interval:     time.Minute,
	OpenTimeout:  30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewBreaker builds a named breaker that reports its state to Prometheus.
func NewBreaker[T any](name string, s BreakerSettings) *gobreaker.CircuitBreaker[T] {
	if s.MaxRequests == 0 {
		s.MaxRequests = DefaultBreakerSettings.MaxRequests
	}
	if s.Interval == 0 {
		s.Interval = DefaultBreakerSettings.Interval
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = DefaultBreakerSettings.OpenTimeout
	}
	if s.MinRequests == 0 {
		s.MinRequests = DefaultBreakerSettings.MinRequests
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = DefaultBreakerSettings.FailureRatio
	}

	observability.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				slog.String("upstream", name),
				slog.String("from", StateName(from)),
				slog.String("to", StateName(to)),
			)
			observability.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			observability.CircuitBreakerTransitions.WithLabelValues(name, StateName(from), StateName(to)).Inc()
		},
	})
}

// IsRejected reports whether err came from the breaker itself rather than the upstream.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StateName renders a breaker state for logs and metric labels.
func StateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
