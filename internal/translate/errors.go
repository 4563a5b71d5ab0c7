package translate

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// ErrNoAPIKey means no credential could be resolved for the configured
// provider. Configuration errors are fatal for the call and never retried.
var ErrNoAPIKey = errors.New("API key not found")

// ConfigError is a misconfiguration (bad endpoint, unknown provider,
// missing credential). Never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// TransientError marks a failure worth retrying: timeout, rate limit,
// 5xx-class provider error.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError means the provider replied but the reply could not
// be fully mapped back to the requested paragraphs. Not retried; affected
// paragraphs degrade to empty results.
type MalformedResponseError struct {
	Missing []int // expected indexes absent from the reply
	Extra   []int // reply indexes that were never requested
	Err     error // underlying parse error, if any
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed provider response (missing=%v extra=%v): %v", e.Missing, e.Extra, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. An open circuit
// breaker is not transient: retrying against it cannot help.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) || errors.Is(err, ErrNoAPIKey) {
		return false
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	// Timeouts count as network failures for retry bookkeeping.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}
