package translate

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider sends prompts to the OpenAI chat completions API.
type OpenAIProvider struct {
	config *Config
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI translation provider
func NewOpenAIProvider(config *Config) *OpenAIProvider {
	return &OpenAIProvider{
		config: config,
		client: openai.NewClient(config.OpenAIKey),
	}
}

// Call sends the prompt and returns the raw reply text.
func (p *OpenAIProvider) Call(ctx context.Context, prompt string) (string, error) {
	if p.config.OpenAIKey == "" {
		return "", &ConfigError{Reason: "OpenAI API key not found"}
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: p.config.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if IsTransient(err) || ctx.Err() == context.DeadlineExceeded {
			return "", &TransientError{Op: "openai call", Err: err}
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Err: fmt.Errorf("no choices returned")}
	}

	return resp.Choices[0].Message.Content, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("openai/%s", p.config.OpenAIModel)
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable() error {
	if p.config.OpenAIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
