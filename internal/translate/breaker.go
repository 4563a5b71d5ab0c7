package translate

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerProvider wraps a Provider with a circuit breaker so a provider
// outage stops burning quota and latency on calls that will fail anyway.
// Configuration and malformed-response errors do not count as failures:
// they say nothing about provider health.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps inner with a circuit breaker. The breaker opens
// after 5 consecutive failures and probes again after 30 seconds.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var cfgErr *ConfigError
			var malformed *MalformedResponseError
			return errors.As(err, &cfgErr) || errors.As(err, &malformed)
		},
	}
	return &BreakerProvider{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Call executes the provider call through the breaker.
func (p *BreakerProvider) Call(ctx context.Context, prompt string) (string, error) {
	reply, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Call(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return reply.(string), nil
}

// Name returns the provider name
func (p *BreakerProvider) Name() string {
	return p.inner.Name()
}

// IsAvailable checks the wrapped provider and the breaker state.
func (p *BreakerProvider) IsAvailable() error {
	if p.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return p.inner.IsAvailable()
}
