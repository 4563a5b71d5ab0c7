package translate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"codeberg.org/snonux/lexigap/internal/fingerprint"
)

func TestNewProvider_RequiresKeys(t *testing.T) {
	cfg := DefaultProviderConfig()
	cfg.Provider = "openai"
	if _, err := NewProvider(cfg); err == nil {
		t.Error("Expected error for missing OpenAI key")
	}

	cfg.Provider = "gemini"
	if _, err := NewProvider(cfg); err == nil {
		t.Error("Expected error for missing Gemini key")
	}

	cfg.Provider = "carrier-pigeon"
	_, err := NewProvider(cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for unknown provider, got %v", err)
	}
}

func TestNewProvider_OpenAI(t *testing.T) {
	cfg := DefaultProviderConfig()
	cfg.OpenAIKey = "test-api-key"

	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "openai/gpt-4o-mini" {
		t.Errorf("Unexpected provider name: %s", p.Name())
	}
	if err := p.IsAvailable(); err != nil {
		t.Errorf("Expected provider available, got %v", err)
	}
}

func TestProviderWithFallback(t *testing.T) {
	primary := NewMockProvider()
	primary.FailNext = 1
	fallback := NewMockProvider()

	p := NewProviderWithFallback(primary, fallback)
	reply, err := p.Call(context.Background(), "[PARA_0]\ntext\n[/PARA_0]")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply == "" {
		t.Error("Expected fallback reply")
	}
	if fallback.Calls() != 1 {
		t.Errorf("Expected 1 fallback call, got %d", fallback.Calls())
	}
}

func TestProviderWithFallback_ConfigErrorNotWorkedAround(t *testing.T) {
	primary := NewMockProvider()
	primary.FailNext = 1
	primary.Err = &ConfigError{Reason: "bad endpoint"}
	fallback := NewMockProvider()

	p := NewProviderWithFallback(primary, fallback)
	if _, err := p.Call(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected config error to propagate")
	}
	if fallback.Calls() != 0 {
		t.Errorf("Fallback must not run on config errors, got %d calls", fallback.Calls())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", &TransientError{Op: "call", Err: fmt.Errorf("boom")}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"config", &ConfigError{Reason: "no key"}, false},
		{"no key sentinel", ErrNoAPIKey, false},
		{"malformed", &MalformedResponseError{}, false},
		{"wrapped transient", fmt.Errorf("outer: %w", &TransientError{Op: "x", Err: fmt.Errorf("y")}), true},
		{"plain", errors.New("whatever"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt_Markers(t *testing.T) {
	items := []Item{
		{Index: 0, Text: "First paragraph."},
		{Index: 3, Text: "Fourth paragraph."},
	}
	prompt := BuildPrompt(items, PromptOptions{
		Mode:           fingerprint.ModeWord,
		TargetLanguage: "Bulgarian",
		NativeLanguage: "English",
		VocabularySize: 4200,
	})

	for _, want := range []string{"[PARA_0]", "[/PARA_0]", "[PARA_3]", "[/PARA_3]", "First paragraph.", "4200", "strict JSON"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_Modes(t *testing.T) {
	items := []Item{{Index: 0, Text: "text"}}

	word := BuildPrompt(items, PromptOptions{Mode: fingerprint.ModeWord})
	full := BuildPrompt(items, PromptOptions{Mode: fingerprint.ModeFull})
	if word == full {
		t.Error("Expected word and full mode prompts to differ")
	}
	if !strings.Contains(full, "in full") {
		t.Error("Full mode prompt missing full-translation instruction")
	}
}

func TestMockProvider_RoundTrip(t *testing.T) {
	p := NewMockProvider()
	prompt := BuildPrompt([]Item{{Index: 0, Text: "alpha"}, {Index: 1, Text: "beta"}}, PromptOptions{})

	reply, err := p.Call(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	results, disc, err := ParseReply(reply, []int{0, 1})
	if err != nil {
		t.Fatalf("ParseReply failed: %v", err)
	}
	if !disc.IsClean() {
		t.Errorf("Expected clean reply from mock, got %+v", disc)
	}
	if results[0].IsEmpty() || results[1].IsEmpty() {
		t.Error("Expected non-empty mock results")
	}
}

func TestOpenAIProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: OPENAI_API_KEY not set")
	}

	cfg := DefaultProviderConfig()
	cfg.OpenAIKey = apiKey
	p := NewOpenAIProvider(cfg)

	prompt := BuildPrompt([]Item{{Index: 0, Text: "Сложните думи са трудни."}}, PromptOptions{
		TargetLanguage: "Bulgarian",
		NativeLanguage: "English",
	})
	reply, err := p.Call(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	results, _, err := ParseReply(reply, []int{0})
	if err != nil {
		t.Fatalf("ParseReply failed: %v", err)
	}
	t.Logf("Result: %+v", results[0])
}
