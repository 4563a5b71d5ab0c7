package translate

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Delay:       func(attempt int) time.Duration { return time.Millisecond },
	}
}

func TestRetryProvider_RecoversFromTransientFailures(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 2

	p := NewRetryProvider(mock, fastPolicy(3))
	if _, err := p.Call(context.Background(), "[PARA_0]\nx\n[/PARA_0]"); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("Expected 3 calls, got %d", mock.Calls())
	}
}

func TestRetryProvider_ExhaustsAttempts(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 10

	p := NewRetryProvider(mock, fastPolicy(3))
	if _, err := p.Call(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if mock.Calls() != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", mock.Calls())
	}
}

func TestRetryProvider_NoRetryOnConfigError(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 10
	mock.Err = &ConfigError{Reason: "missing credentials"}

	p := NewRetryProvider(mock, fastPolicy(3))
	if _, err := p.Call(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected config error")
	}
	if mock.Calls() != 1 {
		t.Errorf("Config errors must not be retried, got %d calls", mock.Calls())
	}
}

func TestRetryProvider_NoRetryOnOpenCircuit(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 10
	mock.Err = gobreaker.ErrOpenState

	p := NewRetryProvider(mock, fastPolicy(3))
	if _, err := p.Call(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error")
	}
	if mock.Calls() != 1 {
		t.Errorf("Open-circuit errors must not be retried, got %d calls", mock.Calls())
	}
}

func TestRetryProvider_RespectsContextCancellation(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 10

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewRetryProvider(mock, fastPolicy(5))
	if _, err := p.Call(ctx, "prompt"); err == nil {
		t.Fatal("Expected error with cancelled context")
	}
	if mock.Calls() > 1 {
		t.Errorf("Expected no retries after cancellation, got %d calls", mock.Calls())
	}
}

func TestRetryPolicy_ExponentialBackoffCapped(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    3 * time.Second,
	}.withDefaults()

	if d := p.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", d)
	}
	if d := p.Delay(2); d != 2*time.Second {
		t.Errorf("Delay(2) = %v, want 2s", d)
	}
	if d := p.Delay(3); d != 3*time.Second {
		t.Errorf("Delay(3) = %v, want cap 3s", d)
	}
	if d := p.Delay(10); d != 3*time.Second {
		t.Errorf("Delay(10) = %v, want cap 3s", d)
	}
}

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 100

	p := NewBreakerProvider(mock)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p.Call(ctx, "prompt")
	}

	// Breaker is now open; the wrapped provider must not be reached.
	calls := mock.Calls()
	_, err := p.Call(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected open-circuit error")
	}
	if mock.Calls() != calls {
		t.Error("Open breaker still forwarded the call")
	}
	if IsTransient(err) {
		t.Error("Open-circuit error must not be treated as transient")
	}
	if p.IsAvailable() == nil {
		t.Error("Expected IsAvailable to fail while the circuit is open")
	}
}

func TestBreakerProvider_ConfigErrorsDoNotTrip(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext = 100
	mock.Err = &ConfigError{Reason: "no key"}

	p := NewBreakerProvider(mock)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		p.Call(ctx, "prompt")
	}
	// All ten calls must have reached the provider: config errors are not
	// provider-health failures.
	if mock.Calls() != 10 {
		t.Errorf("Expected 10 forwarded calls, got %d", mock.Calls())
	}
}
