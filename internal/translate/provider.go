package translate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Provider defines the interface for text-generation providers. The
// pipeline only needs "send prompt, get text back"; everything structured
// is layered on top by the prompt builder and reply parser.
type Provider interface {
	// Call sends a prompt and returns the provider's raw text reply.
	Call(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() error
}

// Config holds common configuration for translation providers
type Config struct {
	Provider string // Provider name: "openai" or "gemini"
	Timeout  time.Duration

	// OpenAI-specific settings
	OpenAIKey   string
	OpenAIModel string // e.g. "gpt-4o-mini"

	// Gemini-specific settings
	GeminiKey   string
	GeminiModel string // e.g. "gemini-2.0-flash"

	Temperature float32
	MaxTokens   int
}

// DefaultProviderConfig returns default configuration
func DefaultProviderConfig() *Config {
	return &Config{
		Provider:    "openai",
		Timeout:     30 * time.Second,
		OpenAIModel: "gpt-4o-mini",
		GeminiModel: "gemini-2.0-flash",
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// NewProvider creates the appropriate translation provider based on
// configuration.
func NewProvider(config *Config) (Provider, error) {
	if config == nil {
		config = DefaultProviderConfig()
	}

	switch config.Provider {
	case "openai":
		if config.OpenAIKey == "" {
			return nil, &ConfigError{Reason: "OpenAI API key is required"}
		}
		return NewOpenAIProvider(config), nil

	case "gemini":
		if config.GeminiKey == "" {
			return nil, &ConfigError{Reason: "Gemini API key is required"}
		}
		return NewGeminiProvider(config), nil

	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown translation provider: %s", config.Provider)}
	}
}

// ProviderWithFallback wraps a primary provider with a fallback option
type ProviderWithFallback struct {
	primary  Provider
	fallback Provider
}

// NewProviderWithFallback creates a provider that falls back to secondary if primary fails
func NewProviderWithFallback(primary, fallback Provider) Provider {
	return &ProviderWithFallback{
		primary:  primary,
		fallback: fallback,
	}
}

// Call tries the primary provider first, falls back to secondary on error.
// Configuration errors on the primary are not worked around: they need the
// user, not a different backend.
func (p *ProviderWithFallback) Call(ctx context.Context, prompt string) (string, error) {
	reply, err := p.primary.Call(ctx, prompt)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return "", err
		}
		fmt.Fprintf(os.Stderr, "Primary provider (%s) failed: %v. Falling back to %s\n",
			p.primary.Name(), err, p.fallback.Name())
		return p.fallback.Call(ctx, prompt)
	}
	return reply, nil
}

// Name returns the provider name
func (p *ProviderWithFallback) Name() string {
	return fmt.Sprintf("%s (fallback: %s)", p.primary.Name(), p.fallback.Name())
}

// IsAvailable checks if at least one provider is available
func (p *ProviderWithFallback) IsAvailable() error {
	primaryErr := p.primary.IsAvailable()
	if primaryErr == nil {
		return nil
	}

	fallbackErr := p.fallback.IsAvailable()
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("both providers unavailable: primary=%v, fallback=%v",
		primaryErr, fallbackErr)
}
