package translate

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// ShouldRetry decides whether err from attempt (0-based) warrants
	// another try. Defaults to IsTransient.
	ShouldRetry func(err error, attempt int) bool
	// Delay returns the wait before attempt (1-based retry number).
	// Defaults to exponential backoff from BaseDelay capped at MaxDelay.
	Delay func(attempt int) time.Duration

	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, exponential
// backoff starting at 500ms, capped at 8s, retrying transient errors only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = func(err error, attempt int) bool { return IsTransient(err) }
	}
	if p.Delay == nil {
		base, max := p.BaseDelay, p.MaxDelay
		p.Delay = func(attempt int) time.Duration {
			d := base * (1 << uint(attempt-1))
			if d > max {
				d = max
			}
			return d
		}
	}
	return p
}

// RetryProvider decorates a Provider with retry-with-backoff.
type RetryProvider struct {
	inner  Provider
	policy RetryPolicy
}

// NewRetryProvider wraps inner with the given retry policy.
func NewRetryProvider(inner Provider, policy RetryPolicy) *RetryProvider {
	return &RetryProvider{inner: inner, policy: policy.withDefaults()}
}

// Call retries the wrapped provider per the policy. It respects context
// cancellation between attempts.
func (p *RetryProvider) Call(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		reply, err := p.inner.Call(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", lastErr
		}
		if !p.policy.ShouldRetry(err, attempt) {
			return "", err
		}
		if attempt < p.policy.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(p.policy.Delay(attempt + 1)):
			}
		}
	}
	return "", fmt.Errorf("all %d attempts failed: %w", p.policy.MaxAttempts, lastErr)
}

// Name returns the provider name
func (p *RetryProvider) Name() string {
	return p.inner.Name()
}

// IsAvailable checks the wrapped provider.
func (p *RetryProvider) IsAvailable() error {
	return p.inner.IsAvailable()
}
