package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

var paraMarker = regexp.MustCompile(`\[PARA_(\d+)\]`)

// MockProvider is an offline provider for tests and dry runs. It echoes a
// well-formed reply for every [PARA_n] marker found in the prompt, marking
// the first word of each paragraph as a difficult word. Errors can be
// scripted to exercise retry and failure paths.
type MockProvider struct {
	mu sync.Mutex

	// FailNext makes the next N calls fail with Err before succeeding.
	FailNext int
	// Err is returned while FailNext > 0. Defaults to a TransientError.
	Err error
	// Reply overrides the synthesized reply when non-empty.
	Reply string

	calls int
}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Calls returns how many times Call has been invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Call synthesizes a reply covering every paragraph marker in the prompt.
func (p *MockProvider) Call(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if p.FailNext > 0 {
		p.FailNext--
		if p.Err != nil {
			return "", p.Err
		}
		return "", &TransientError{Op: "mock call", Err: fmt.Errorf("scripted failure")}
	}
	if p.Reply != "" {
		return p.Reply, nil
	}

	var entries []replyEntry
	for _, m := range paraMarker.FindAllStringSubmatch(prompt, -1) {
		idx, _ := strconv.Atoi(m[1])
		entries = append(entries, replyEntry{
			Index: idx,
			Words: []Word{{
				Original:    fmt.Sprintf("word%d", idx),
				Translation: fmt.Sprintf("translation%d", idx),
				Difficulty:  7,
			}},
		})
	}
	b, _ := json.Marshal(entries)
	return string(b), nil
}

// Name returns the provider name
func (p *MockProvider) Name() string { return "mock" }

// IsAvailable always succeeds.
func (p *MockProvider) IsAvailable() error { return nil }
