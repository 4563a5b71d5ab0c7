package translate

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider sends prompts to the Gemini API via the genai SDK.
type GeminiProvider struct {
	config *Config
}

// NewGeminiProvider creates a new Gemini translation provider
func NewGeminiProvider(config *Config) *GeminiProvider {
	return &GeminiProvider{config: config}
}

// Call sends the prompt and returns the raw reply text.
func (p *GeminiProvider) Call(ctx context.Context, prompt string) (string, error) {
	if p.config.GeminiKey == "" {
		return "", &ConfigError{Reason: "Gemini API key not found"}
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, p.config.GeminiModel, genai.Text(prompt), nil)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &TransientError{Op: "gemini call", Err: err}
		}
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", &MalformedResponseError{Err: fmt.Errorf("empty Gemini response")}
	}
	return text, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("gemini/%s", p.config.GeminiModel)
}

// IsAvailable checks if the provider is properly configured
func (p *GeminiProvider) IsAvailable() error {
	if p.config.GeminiKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
